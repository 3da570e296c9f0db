package daemon_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidslide/internal/api"
	"vidslide/internal/batch"
	"vidslide/internal/config"
	"vidslide/internal/daemon"
	"vidslide/internal/logging"
	"vidslide/internal/metrics"
	"vidslide/internal/testsupport"
	"vidslide/internal/testsupport/fakevideo"
	"vidslide/internal/workflow"
)

type fixture struct {
	t       *testing.T
	cfg     *config.Config
	decoder *fakevideo.Decoder
	daemon  *daemon.Daemon
	base    string
	token   string
}

func newFixture(t *testing.T, mutate func(*config.Config), opts ...daemon.Option) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	decoder := fakevideo.NewDecoder(2,
		fakevideo.Scene{Frames: 10, Shade: 0},
		fakevideo.Scene{Frames: 10, Shade: 120},
		fakevideo.Scene{Frames: 10, Shade: 240},
	)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	wf := workflow.NewManager(cfg, st, decoder, logger, workflow.WithWorkerCeiling(2))
	d, err := daemon.New(cfg, st, logger, wf, opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		decoder.Release()
		_ = d.Close()
	})
	return &fixture{t: t, cfg: cfg, decoder: decoder, daemon: d, token: cfg.Paths.APIToken}
}

func (f *fixture) start() {
	f.t.Helper()
	if err := f.daemon.Start(context.Background()); err != nil {
		f.t.Fatalf("Start failed: %v", err)
	}
	f.base = "http://" + f.daemon.APIAddress()
}

func (f *fixture) do(method, path string, body any, out any) int {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			f.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.base+path, reader)
	if err != nil {
		f.t.Fatalf("new request: %v", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		f.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			f.t.Fatalf("decode %s: %v", path, err)
		}
	} else if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (f *fixture) video(name string) string {
	f.t.Helper()
	return testsupport.WriteVideos(f.t, filepath.Join(testsupport.BaseDir(f.cfg), "videos"), name)[0]
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.start()

	status := f.daemon.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != f.cfg.LockPath() || status.DatabasePath != f.cfg.DatabasePath() {
		t.Fatalf("unexpected paths in status: %+v", status)
	}

	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected start after stop to fail")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Paths.APIBind = "" })
	f.start()

	st := testsupport.MustOpenStore(t, f.cfg)
	wf := workflow.NewManager(f.cfg, st, f.decoder, nil)
	second, err := daemon.New(f.cfg, st, logging.NewNop(), wf)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = second.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock error, got %v", err)
	}
	if f.daemon.APIAddress() != "" {
		t.Fatalf("expected no API listener without a bind address, got %q", f.daemon.APIAddress())
	}
}

func TestAPIBatchLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	var created api.BatchResponse
	if code := f.do(http.MethodPost, "/api/batches", api.CreateBatchRequest{}, &created); code != http.StatusCreated {
		t.Fatalf("create batch: status %d", code)
	}
	batchID := created.Batch.ID

	var staged api.StageResponse
	stage := api.StageRequest{Videos: []batch.StageEntry{{Path: f.video("one.mp4")}, {Path: f.video("two.mp4")}}}
	if code := f.do(http.MethodPost, "/api/batches/"+batchID+"/videos", stage, &staged); code != http.StatusCreated {
		t.Fatalf("stage: status %d", code)
	}
	if len(staged.IDs) != 2 {
		t.Fatalf("expected 2 staged ids, got %v", staged.IDs)
	}

	move := api.MoveRequest{IDs: staged.IDs, From: "staged", To: "queued"}
	if code := f.do(http.MethodPost, "/api/batches/"+batchID+"/move", move, nil); code != http.StatusNoContent {
		t.Fatalf("move: status %d", code)
	}
	if code := f.do(http.MethodPost, "/api/batches/"+batchID+"/start", nil, nil); code != http.StatusAccepted {
		t.Fatalf("start: status %d", code)
	}

	var snap api.BatchResponse
	deadline := time.Now().Add(10 * time.Second)
	for {
		f.do(http.MethodGet, "/api/batches/"+batchID, nil, &snap)
		if snap.Batch.Status == batch.BatchIdle && len(snap.Batch.Zones.Completed) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch did not finish: %+v", snap.Batch)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap.Batch.TotalImages != 6 {
		t.Fatalf("expected 6 images, got %d", snap.Batch.TotalImages)
	}

	var images api.ImagesResponse
	taskPath := "/api/batches/" + batchID + "/tasks/" + staged.IDs[0]
	if code := f.do(http.MethodGet, taskPath+"/images", nil, &images); code != http.StatusOK {
		t.Fatalf("images: status %d", code)
	}
	if len(images.Images) != 3 {
		t.Fatalf("expected 3 images, got %v", images.Images)
	}

	var exported api.ExportResponse
	if code := f.do(http.MethodPost, "/api/batches/"+batchID+"/export", api.ExportRequest{Format: "zip"}, &exported); code != http.StatusOK {
		t.Fatalf("export: status %d", code)
	}
	if len(exported.Results) != 2 || exported.Results[0].File == "" || exported.Error != "" {
		t.Fatalf("unexpected export response: %+v", exported)
	}

	var listed api.BatchListResponse
	f.do(http.MethodGet, "/api/batches", nil, &listed)
	if len(listed.Batches) != 1 || listed.Batches[0].CompletedCount != 2 {
		t.Fatalf("unexpected batch list: %+v", listed.Batches)
	}

	var status api.DaemonStatus
	if code := f.do(http.MethodGet, "/api/status", nil, &status); code != http.StatusOK {
		t.Fatalf("status: status %d", code)
	}
	if !status.Running || status.Workflow.Batches != 1 {
		t.Fatalf("unexpected daemon status: %+v", status)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	var errResp api.ErrorResponse
	if code := f.do(http.MethodGet, "/api/batches/missing", nil, &errResp); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if errResp.Kind != "not_found" {
		t.Fatalf("unexpected error kind %q", errResp.Kind)
	}

	var created api.BatchResponse
	f.do(http.MethodPost, "/api/batches", nil, &created)
	move := api.MoveRequest{IDs: []string{"t1"}, From: "staged", To: "archive"}
	if code := f.do(http.MethodPost, "/api/batches/"+created.Batch.ID+"/move", move, &errResp); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown zone, got %d", code)
	}

	if code := f.do(http.MethodPost, "/api/batches/"+created.Batch.ID+"/move", map[string]any{"bogus": true}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Paths.APIToken = "secret" })
	f.start()

	f.token = ""
	if code := f.do(http.MethodGet, "/api/status", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	f.token = "wrong"
	if code := f.do(http.MethodGet, "/api/status", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", code)
	}
	f.token = "secret"
	if code := f.do(http.MethodGet, "/api/status", nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", code)
	}
}

func TestAPIEventStreamStartsWithInit(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	var created api.BatchResponse
	f.do(http.MethodPost, "/api/batches", nil, &created)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/api/batches/"+created.Batch.ID+"/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}
	if eventLine != "event: init" {
		t.Fatalf("expected init event first, got %q", eventLine)
	}
	if !strings.Contains(dataLine, created.Batch.ID) {
		t.Fatalf("init payload missing batch id: %s", dataLine)
	}
}

func TestAPIEventPolling(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	var created api.BatchResponse
	f.do(http.MethodPost, "/api/batches", nil, &created)
	id := created.Batch.ID
	if code := f.do(http.MethodPost, "/api/batches/"+id+"/workers", api.WorkersRequest{Workers: 1}, nil); code != http.StatusOK {
		t.Fatalf("workers: status %d", code)
	}

	var polled api.EventsResponse
	if code := f.do(http.MethodGet, "/api/batches/"+id+"/events?since=0", nil, &polled); code != http.StatusOK {
		t.Fatalf("poll: status %d", code)
	}
	if len(polled.Events) == 0 || polled.Next == 0 {
		t.Fatalf("expected batch events after worker change, got %+v", polled)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Metrics.Enabled = true }, daemon.WithMetrics(metrics.New()))
	f.start()

	resp, err := http.Get(f.base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "vidslide_active_workers") {
		t.Fatalf("unexpected metrics response %d: %.200s", resp.StatusCode, body)
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	f := newFixture(t, nil)
	sent, message, err := f.daemon.TestNotification(context.Background())
	if err != nil || sent {
		t.Fatalf("expected unsent notification without error, got sent=%v err=%v", sent, err)
	}
	if message != "ntfy topic not configured" {
		t.Fatalf("unexpected message %q", message)
	}
}
