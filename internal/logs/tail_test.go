package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidslide/internal/logs"
)

const sampleLog = `{"ts":"2026-03-01T10:00:00Z","level":"info","msg":"batch created","component":"workflow","batch_id":"b1"}
{"ts":"2026-03-01T10:00:01Z","level":"info","msg":"task started","component":"worker","batch_id":"b1","task_id":"t1","frames":120}
{"ts":"2026-03-01T10:00:02Z","level":"warn","msg":"disk low","component":"workflow","batch_id":"b2"}
plain console line
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vidslide.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastEvents(t *testing.T) {
	path := writeLog(t, sampleLog)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events, got %#v", result.Events)
	}
	if result.Events[0].Message != "disk low" || result.Events[1].Message != "plain console line" {
		t.Fatalf("unexpected events: %#v", result.Events)
	}
	if result.Offset != int64(len(sampleLog)) {
		t.Fatalf("expected offset at end, got %d", result.Offset)
	}
}

func TestTailFiltersByBatchAndTask(t *testing.T) {
	path := writeLog(t, sampleLog)

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10, Filter: logs.Filter{BatchID: "b1"}})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 b1 events, got %#v", result.Events)
	}

	result, err = logs.Tail(context.Background(), path, logs.TailOptions{Offset: 0, Filter: logs.Filter{TaskID: "t1"}})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].Component != "worker" {
		t.Fatalf("expected worker task event, got %#v", result.Events)
	}
	if result.Events[0].Fields["frames"] != "120" {
		t.Fatalf("expected numeric field preserved, got %#v", result.Events[0].Fields)
	}
}

func TestDecode(t *testing.T) {
	evt := logs.Decode(`{"ts":"2026-03-01T10:00:00Z","level":"error","msg":"boom","batch_id":"b9","roi":{"x1":0.1}}`)
	if evt.Level != "ERROR" || evt.Message != "boom" || evt.BatchID != "b9" {
		t.Fatalf("unexpected event: %#v", evt)
	}
	if !evt.Timestamp.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %v", evt.Timestamp)
	}
	if !strings.Contains(evt.Fields["roi"], "x1") {
		t.Fatalf("expected nested field as json, got %#v", evt.Fields)
	}

	plain := logs.Decode("INFO something happened")
	if plain.Message != "INFO something happened" || plain.Level != "" {
		t.Fatalf("unexpected plain event: %#v", plain)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "missing.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail missing: %v", err)
	}
	if len(result.Events) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}

func TestTailKeepsPartialLine(t *testing.T) {
	path := writeLog(t, "{\"msg\":\"one\"}\n{\"msg\":\"tw")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 0})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(result.Events) != 1 || result.Offset != int64(len("{\"msg\":\"one\"}\n")) {
		t.Fatalf("expected only complete line, got %#v", result)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, "{\"msg\":\"start\"}\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected initial event, got %#v", result.Events)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		if len(res.Events) != 1 || res.Events[0].Message != "later" {
			t.Errorf("unexpected follow events: %#v", res.Events)
		}
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("{\"msg\":\"later\"}\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}

func TestCurrentLogPath(t *testing.T) {
	if got := logs.CurrentLogPath("/var/log/vidslide"); got != "/var/log/vidslide/vidslide.log" {
		t.Fatalf("CurrentLogPath = %q", got)
	}
}
