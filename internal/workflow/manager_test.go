package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidslide/internal/batch"
	"vidslide/internal/config"
	"vidslide/internal/events"
	"vidslide/internal/extract"
	"vidslide/internal/notifications"
	"vidslide/internal/packaging"
	"vidslide/internal/services"
	"vidslide/internal/store"
	"vidslide/internal/testsupport"
	"vidslide/internal/testsupport/fakevideo"
)

const waitTimeout = 10 * time.Second

type recordingNotifier struct {
	mu      sync.Mutex
	started []string
	idle    []notifications.BatchSummary
	errors  []string
	exports []string
}

func (r *recordingNotifier) NotifyBatchStarted(_ context.Context, batchID string, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, batchID)
	return nil
}

func (r *recordingNotifier) NotifyBatchIdle(_ context.Context, summary notifications.BatchSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idle = append(r.idle, summary)
	return nil
}

func (r *recordingNotifier) NotifyTaskError(_ context.Context, _, taskName, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, taskName)
	return nil
}

func (r *recordingNotifier) NotifyExportCompleted(_ context.Context, taskName, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exports = append(r.exports, taskName)
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

func (r *recordingNotifier) idleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.idle)
}

type harness struct {
	t        *testing.T
	cfg      *config.Config
	store    store.Persister
	decoder  *fakevideo.Decoder
	notifier *recordingNotifier
	manager  *Manager
}

// slideScenes yields three slides: A, B, back to A (suppressed), then C.
func slideScenes() []fakevideo.Scene {
	return []fakevideo.Scene{
		{Frames: 10, Shade: 0},
		{Frames: 10, Shade: 100},
		{Frames: 10, Shade: 0},
		{Frames: 10, Shade: 200},
	}
}

// longScenes alternates between distinct shades so every scene is a slide.
func longScenes(n int) []fakevideo.Scene {
	scenes := make([]fakevideo.Scene, n)
	for i := range scenes {
		scenes[i] = fakevideo.Scene{Frames: 10, Shade: uint8((i * 37) % 256)}
	}
	return scenes
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	require.NoError(t, cfg.EnsureDirectories())
	h := &harness{
		t:        t,
		cfg:      cfg,
		store:    testsupport.MustOpenStore(t, cfg),
		decoder:  fakevideo.NewDecoder(2, slideScenes()...),
		notifier: &recordingNotifier{},
	}
	h.manager = h.newManager()
	return h
}

func (h *harness) newManager(opts ...ManagerOption) *Manager {
	h.t.Helper()
	base := []ManagerOption{WithNotifier(h.notifier), WithWorkerCeiling(4)}
	m := NewManager(h.cfg, h.store, h.decoder, nil, append(base, opts...)...)
	require.NoError(h.t, m.Load(context.Background()))
	h.t.Cleanup(func() {
		h.decoder.Release()
		_ = m.Close(context.Background())
	})
	return m
}

// videos writes placeholder video files and returns their paths.
func (h *harness) videos(names ...string) []string {
	h.t.Helper()
	return testsupport.WriteVideos(h.t, filepath.Join(testsupport.BaseDir(h.cfg), "videos"), names...)
}

// queued creates a batch with the given videos staged and queued.
func (h *harness) queued(names ...string) (string, []string) {
	h.t.Helper()
	ctx := context.Background()
	snap, err := h.manager.CreateBatch(ctx, nil)
	require.NoError(h.t, err)
	var entries []batch.StageEntry
	for _, path := range h.videos(names...) {
		entries = append(entries, batch.StageEntry{Path: path})
	}
	ids, err := h.manager.StageVideos(ctx, snap.ID, entries)
	require.NoError(h.t, err)
	require.NoError(h.t, h.manager.MoveToQueue(ctx, snap.ID, ids, -1))
	return snap.ID, ids
}

func (h *harness) task(batchID, id string) batch.TaskRecord {
	h.t.Helper()
	snap, err := h.manager.BatchStatus(batchID)
	require.NoError(h.t, err)
	for _, zone := range [][]batch.TaskRecord{snap.Zones.Staged, snap.Zones.Queued, snap.Zones.Completed, snap.Zones.Trashed} {
		for _, rec := range zone {
			if rec.ID == id {
				return rec
			}
		}
	}
	h.t.Fatalf("task %s not found", id)
	return batch.TaskRecord{}
}

func (h *harness) waitIdle(batchID string) batch.Snapshot {
	h.t.Helper()
	var snap batch.Snapshot
	require.Eventually(h.t, func() bool {
		var err error
		snap, err = h.manager.BatchStatus(batchID)
		return err == nil && snap.Status == batch.BatchIdle && len(snap.RunningIDs) == 0
	}, waitTimeout, 5*time.Millisecond)
	return snap
}

func (h *harness) waitStatus(batchID, id string, status batch.Status) batch.TaskRecord {
	h.t.Helper()
	var rec batch.TaskRecord
	require.Eventually(h.t, func() bool {
		rec = h.task(batchID, id)
		return rec.Status == status
	}, waitTimeout, 5*time.Millisecond)
	return rec
}

type collector struct {
	mu     sync.Mutex
	events []events.Event
	done   chan struct{}
}

func collect(t *testing.T, m *Manager, batchID string) *collector {
	t.Helper()
	sub, err := m.Subscribe(batchID)
	require.NoError(t, err)
	c := &collector{done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for evt := range sub.Events() {
			c.mu.Lock()
			c.events = append(c.events, evt)
			c.mu.Unlock()
		}
	}()
	t.Cleanup(func() { m.Bus().Unsubscribe(sub) })
	return c
}

func (c *collector) types() []events.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Type, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.Type
	}
	return out
}

func (c *collector) has(typ events.Type) bool {
	for _, got := range c.types() {
		if got == typ {
			return true
		}
	}
	return false
}

// statuses lists the status transitions published for one task.
func (c *collector) statuses(taskID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, evt := range c.events {
		if st, ok := evt.Payload.(events.TaskStatus); ok && st.TaskID == taskID {
			out = append(out, st.Status)
		}
	}
	return out
}

func TestBatchProcessesEveryQueuedVideoWithinWorkerLimit(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxWorkers(2))
	batchID, ids := h.queued("lecture1.mp4", "lecture2.mp4", "lecture3.mp4")
	stream := collect(t, h.manager, batchID)

	h.decoder.Hold()
	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	require.Eventually(t, func() bool { return h.decoder.Active() == 2 }, waitTimeout, 5*time.Millisecond)

	snap, err := h.manager.BatchStatus(batchID)
	require.NoError(t, err)
	require.Equal(t, batch.BatchProcessing, snap.Status)
	require.Equal(t, ids[:2], snap.RunningIDs)
	require.Equal(t, batch.StatusQueued, h.task(batchID, ids[2]).Status)

	h.decoder.Release()
	snap = h.waitIdle(batchID)

	require.Len(t, snap.Zones.Completed, 3)
	require.Empty(t, snap.Zones.Queued)
	require.Equal(t, 3, snap.CompletedCount)
	require.Equal(t, 9, snap.TotalImages)
	require.Equal(t, 100, snap.GlobalProgress)
	require.LessOrEqual(t, h.decoder.PeakActive(), int64(2))
	for _, rec := range snap.Zones.Completed {
		require.Equal(t, batch.StatusDone, rec.Status)
		require.Equal(t, 3, rec.SavedCount)
		images, err := h.manager.ListImages(batchID, rec.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"slide_0000.jpg", "slide_0001.jpg", "slide_0002.jpg"}, images)
	}
	require.Eventually(t, func() bool { return h.notifier.idleCount() == 1 }, waitTimeout, 5*time.Millisecond)

	require.Eventually(t, func() bool { return stream.has(events.TypeTaskProgress) }, waitTimeout, 5*time.Millisecond)
	types := stream.types()
	require.Equal(t, events.TypeInit, types[0])
	require.Contains(t, types, events.TypeZoneChange)
	require.Contains(t, types, events.TypeBatchStatus)

	stored, err := h.store.Load(context.Background(), batchID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.CompletedCount)
}

func TestFailingVideoDoesNotStopBatch(t *testing.T) {
	h := newHarness(t)
	batchID, ids := h.queued("good.mp4", "broken.mp4", "other.mp4")
	broken := h.task(batchID, ids[1]).SourcePath
	h.decoder.FailOpen(broken, errors.New("moov atom not found"))
	stream := collect(t, h.manager, batchID)

	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	snap := h.waitIdle(batchID)

	require.Equal(t, 2, snap.CompletedCount)
	require.Equal(t, 1, snap.FailedCount)
	failed := h.task(batchID, ids[1])
	require.Equal(t, batch.ZoneQueued, failed.Zone)
	require.Equal(t, batch.StatusError, failed.Status)
	require.Equal(t, string(services.KindVideoUnreadable), failed.ErrorKind)
	require.Contains(t, failed.ErrorMessage, "moov atom not found")

	h.notifier.mu.Lock()
	require.Equal(t, []string{"broken"}, h.notifier.errors)
	h.notifier.mu.Unlock()

	// the unreadable source is rejected before a worker claims it
	require.Eventually(t, func() bool {
		return slices.Contains(stream.statuses(ids[1]), string(batch.StatusError))
	}, waitTimeout, 5*time.Millisecond)
	require.NotContains(t, stream.statuses(ids[1]), string(batch.StatusRunning))
	require.Equal(t, int64(2), h.decoder.Opened())
	require.True(t, failed.StartedAt.IsZero())
}

func TestPauseAfterCurrentStopsDispatching(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxWorkers(1))
	batchID, ids := h.queued("a.mp4", "b.mp4")

	h.decoder.Hold()
	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	require.Eventually(t, func() bool { return h.decoder.Active() == 1 }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, h.manager.PauseAfterCurrent(context.Background(), batchID))
	h.decoder.Release()

	h.waitIdle(batchID)
	require.Equal(t, batch.StatusDone, h.task(batchID, ids[0]).Status)
	require.Equal(t, batch.StatusQueued, h.task(batchID, ids[1]).Status)

	restarted := time.Now()
	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	h.waitIdle(batchID)
	require.Equal(t, batch.StatusDone, h.task(batchID, ids[1]).Status)
	require.Eventually(t, func() bool { return h.notifier.idleCount() == 2 }, waitTimeout, 5*time.Millisecond)

	// the second summary covers only the second run
	h.notifier.mu.Lock()
	second := h.notifier.idle[1]
	h.notifier.mu.Unlock()
	require.LessOrEqual(t, second.Duration, time.Since(restarted))
}

func TestPausedTaskResumesFromLastFrame(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxWorkers(1))
	h.decoder.FrameDelay = 2 * time.Millisecond
	batchID, ids := h.queued("paused.mp4", "whole.mp4")
	for _, id := range ids {
		h.decoder.SetVideo(h.task(batchID, id).SourcePath, longScenes(30)...)
	}

	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	require.Eventually(t, func() bool { return h.task(batchID, ids[0]).SavedCount >= 2 }, waitTimeout, 2*time.Millisecond)

	res, err := h.manager.CancelTask(context.Background(), batchID, ids[0], batch.IntentPause)
	require.NoError(t, err)
	require.True(t, res.Pending)

	paused := h.waitStatus(batchID, ids[0], batch.StatusPaused)
	h.waitIdle(batchID)
	require.Positive(t, paused.SavedCount)
	before, err := h.manager.ListImages(batchID, ids[0])
	require.NoError(t, err)
	require.Len(t, before, paused.SavedCount)

	whole := h.task(batchID, ids[1])
	require.Equal(t, batch.StatusDone, whole.Status)
	require.Equal(t, 30, whole.SavedCount)
	wholeImages, err := h.manager.ListImages(batchID, ids[1])
	require.NoError(t, err)

	retry, err := h.manager.Retry(context.Background(), batchID, ids[0])
	require.NoError(t, err)
	require.True(t, retry.Resumed)
	require.Equal(t, paused.ResumeFrame, retry.ResumeFrame)

	h.decoder.FrameDelay = 0
	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	h.waitIdle(batchID)

	done := h.task(batchID, ids[0])
	require.Equal(t, batch.StatusDone, done.Status)
	require.Equal(t, 1, done.RetryCount)
	require.Equal(t, whole.SavedCount, done.SavedCount)
	after, err := h.manager.ListImages(batchID, ids[0])
	require.NoError(t, err)
	require.Equal(t, wholeImages, after)
	require.Subset(t, after, before)
}

func TestCancelledTaskRestartsFromScratch(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxWorkers(1))
	batchID, ids := h.queued("a.mp4")

	h.decoder.Hold()
	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	require.Eventually(t, func() bool { return h.decoder.Active() == 1 }, waitTimeout, 5*time.Millisecond)
	_, err := h.manager.CancelTask(context.Background(), batchID, ids[0], batch.IntentCancel)
	require.NoError(t, err)
	h.decoder.Release()

	h.waitStatus(batchID, ids[0], batch.StatusCancelled)
	h.waitIdle(batchID)

	retry, err := h.manager.Retry(context.Background(), batchID, ids[0])
	require.NoError(t, err)
	require.False(t, retry.Resumed)
	require.True(t, retry.DiscardOutput)
	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	h.waitIdle(batchID)
	require.Equal(t, 3, h.task(batchID, ids[0]).SavedCount)
}

func TestQueuedTaskIntents(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxWorkers(1))
	batchID, ids := h.queued("a.mp4", "b.mp4", "c.mp4")

	res, err := h.manager.CancelTask(context.Background(), batchID, ids[1], batch.IntentSkip)
	require.NoError(t, err)
	require.False(t, res.Pending)
	require.Equal(t, batch.StatusSkipped, res.Status)

	_, err = h.manager.CancelTask(context.Background(), batchID, ids[2], batch.IntentPause)
	require.NoError(t, err)

	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	snap := h.waitIdle(batchID)
	require.Equal(t, 1, snap.CompletedCount)
	require.Equal(t, 1, snap.SkippedCount)
	require.Equal(t, batch.StatusSkipped, h.task(batchID, ids[1]).Status)
	require.Equal(t, batch.StatusPaused, h.task(batchID, ids[2]).Status)
	require.Equal(t, int64(1), h.decoder.Opened())
}

func TestTrashRunningTaskIsDeferredUntilWorkerStops(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxWorkers(1))
	batchID, ids := h.queued("a.mp4")

	h.decoder.Hold()
	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	require.Eventually(t, func() bool { return h.decoder.Active() == 1 }, waitTimeout, 5*time.Millisecond)

	res, err := h.manager.Trash(context.Background(), batchID, ids[0], "wrong file")
	require.NoError(t, err)
	require.True(t, res.Deferred)
	require.Equal(t, batch.ZoneQueued, h.task(batchID, ids[0]).Zone)

	h.decoder.Release()
	h.waitIdle(batchID)
	rec := h.task(batchID, ids[0])
	require.Equal(t, batch.ZoneTrashed, rec.Zone)
	require.Equal(t, batch.StatusCancelled, rec.Status)
	require.Equal(t, "wrong file", rec.Reason)

	require.NoError(t, h.manager.PermanentlyDelete(context.Background(), batchID, ids[0]))
	_, err = os.Stat(rec.OutputDir)
	require.True(t, os.IsNotExist(err))
}

func TestLowDiskSpaceSkipsTasks(t *testing.T) {
	h := newHarness(t)
	h.cfg.Workers.DiskWarningMB = 500
	h.manager = h.newManager(WithDiskProbe(func(string) (uint64, error) { return 100, nil }))
	batchID, ids := h.queued("a.mp4", "b.mp4")
	stream := collect(t, h.manager, batchID)

	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	snap := h.waitIdle(batchID)

	require.Equal(t, 2, snap.SkippedCount)
	for _, id := range ids {
		rec := h.task(batchID, id)
		require.Equal(t, batch.StatusSkipped, rec.Status)
		require.Contains(t, rec.ErrorMessage, "low disk space")
	}
	require.Zero(t, h.decoder.Opened())
	require.Eventually(t, func() bool { return stream.has(events.TypeDiskSpaceWarning) }, waitTimeout, 5*time.Millisecond)
}

func TestRestartResumesInterruptedTask(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxWorkers(1))
	h.decoder.FrameDelay = 2 * time.Millisecond
	batchID, ids := h.queued("long.mp4")
	h.decoder.SetVideo(h.task(batchID, ids[0]).SourcePath, longScenes(30)...)

	require.NoError(t, h.manager.Start(context.Background(), batchID, nil))
	require.Eventually(t, func() bool { return h.task(batchID, ids[0]).SavedCount >= 2 }, waitTimeout, 2*time.Millisecond)
	require.NoError(t, h.manager.Close(context.Background()))

	h.decoder.FrameDelay = 0
	restarted := h.newManager()
	snap, err := restarted.BatchStatus(batchID)
	require.NoError(t, err)
	require.Equal(t, batch.BatchIdle, snap.Status)
	require.Len(t, snap.Zones.Queued, 1)
	rec := snap.Zones.Queued[0]
	require.Equal(t, batch.StatusPaused, rec.Status)
	require.Positive(t, rec.ResumeFrame)

	images, err := restarted.ListImages(batchID, ids[0])
	require.NoError(t, err)
	require.Len(t, images, rec.SavedCount)

	retry, err := restarted.Retry(context.Background(), batchID, ids[0])
	require.NoError(t, err)
	require.True(t, retry.Resumed)
	h.manager = restarted
	require.NoError(t, restarted.Start(context.Background(), batchID, nil))
	h.waitIdle(batchID)
	require.Equal(t, batch.StatusDone, h.task(batchID, ids[0]).Status)
}

func TestExportDisambiguatesDuplicateNames(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.manager.CreateBatch(ctx, nil)
	require.NoError(t, err)
	paths := h.videos("one/lecture.mp4", "two/lecture.mp4")
	ids, err := h.manager.StageVideos(ctx, snap.ID, []batch.StageEntry{{Path: paths[0]}, {Path: paths[1]}})
	require.NoError(t, err)
	require.NotEqual(t, h.task(snap.ID, ids[0]).OutputDir, h.task(snap.ID, ids[1]).OutputDir)

	_, err = h.manager.Export(ctx, snap.ID, ids, packaging.FormatZIP)
	require.ErrorIs(t, err, services.ErrInvalidTransition)

	require.NoError(t, h.manager.MoveToQueue(ctx, snap.ID, ids, -1))
	require.NoError(t, h.manager.Start(ctx, snap.ID, nil))
	h.waitIdle(snap.ID)

	results, err := h.manager.Export(ctx, snap.ID, nil, packaging.FormatZIP)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "lecture_1", results[0].Name)
	require.Equal(t, "lecture_2", results[1].Name)
	for _, res := range results {
		require.Empty(t, res.Error)
		_, err := os.Stat(res.File)
		require.NoError(t, err)
	}

	_, err = h.manager.Export(ctx, snap.ID, nil, packaging.Format("pptx"))
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestTrashAndRestoreImagesAdjustCounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID, ids := h.queued("a.mp4")
	require.NoError(t, h.manager.Start(ctx, batchID, nil))
	h.waitIdle(batchID)

	moved, err := h.manager.TrashImages(ctx, batchID, ids[0], []string{"slide_0001.jpg"})
	require.NoError(t, err)
	require.Equal(t, 1, moved)
	require.Equal(t, 2, h.task(batchID, ids[0]).SavedCount)
	snap, err := h.manager.BatchStatus(batchID)
	require.NoError(t, err)
	require.Equal(t, 2, snap.TotalImages)

	trashed, err := h.manager.ListTrashedImages(batchID, ids[0])
	require.NoError(t, err)
	require.Equal(t, []string{"slide_0001.jpg"}, trashed)

	_, err = h.manager.TrashImages(ctx, batchID, ids[0], []string{"../escape.jpg"})
	require.ErrorIs(t, err, services.ErrValidation)

	moved, err = h.manager.RestoreImages(ctx, batchID, ids[0], []string{"slide_0001.jpg"})
	require.NoError(t, err)
	require.Equal(t, 1, moved)
	require.Equal(t, 3, h.task(batchID, ids[0]).SavedCount)
}

func TestStageRejectsUnsupportedFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.manager.CreateBatch(ctx, nil)
	require.NoError(t, err)

	notes := filepath.Join(testsupport.BaseDir(h.cfg), "notes.txt")
	testsupport.WriteFile(t, notes, 4)
	_, err = h.manager.StageVideos(ctx, snap.ID, []batch.StageEntry{{Path: notes}})
	require.ErrorIs(t, err, services.ErrValidation)

	_, err = h.manager.StageVideos(ctx, snap.ID, []batch.StageEntry{{Path: "/missing/video.mp4"}})
	require.ErrorIs(t, err, services.ErrValidation)

	_, err = h.manager.StageVideos(ctx, "missing", nil)
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestStagedVideoIsProbed(t *testing.T) {
	h := newHarness(t)
	batchID, ids := h.queued("a.mp4")
	rec := h.task(batchID, ids[0])
	require.Equal(t, int64(40), rec.TotalFrames)
	require.InDelta(t, 20.0, rec.DurationSeconds, 0.001)
	require.FileExists(t, rec.Thumbnail)
	require.Equal(t, "a", rec.DisplayName)
}

func TestMoveToStagedClearsArtifacts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID, ids := h.queued("a.mp4")
	require.NoError(t, h.manager.Start(ctx, batchID, nil))
	h.waitIdle(batchID)

	require.NoError(t, h.manager.MoveToStaged(ctx, batchID, ids))
	rec := h.task(batchID, ids[0])
	require.Equal(t, batch.ZoneStaged, rec.Zone)
	require.Zero(t, rec.SavedCount)
	images, err := h.manager.ListImages(batchID, ids[0])
	require.NoError(t, err)
	require.Empty(t, images)
}

func TestDeleteBatchRequiresIdle(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxWorkers(1))
	ctx := context.Background()
	batchID, _ := h.queued("a.mp4")

	h.decoder.Hold()
	require.NoError(t, h.manager.Start(ctx, batchID, nil))
	require.ErrorIs(t, h.manager.DeleteBatch(ctx, batchID, true), services.ErrBusy)
	require.ErrorIs(t, h.manager.Start(ctx, batchID, nil), services.ErrBusy)
	h.decoder.Release()
	snap := h.waitIdle(batchID)

	require.NoError(t, h.manager.DeleteBatch(ctx, batchID, true))
	_, err := h.manager.BatchStatus(batchID)
	require.ErrorIs(t, err, services.ErrNotFound)
	_, err = os.Stat(snap.Dir)
	require.True(t, os.IsNotExist(err))
	_, err = h.store.Load(ctx, batchID)
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestSetWorkerLimitClampsToCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snap, err := h.manager.CreateBatch(ctx, nil)
	require.NoError(t, err)

	applied, err := h.manager.SetWorkerLimit(ctx, snap.ID, 16)
	require.NoError(t, err)
	require.Equal(t, 4, applied)

	_, err = h.manager.SetWorkerLimit(ctx, snap.ID, 0)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestStartOverridesParams(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID, ids := h.queued("a.mp4")
	params := extract.DefaultParams()
	params.MaxHistory = 0

	require.NoError(t, h.manager.Start(ctx, batchID, &params))
	h.waitIdle(batchID)
	rec := h.task(batchID, ids[0])
	require.NotNil(t, rec.Params)
	require.Zero(t, rec.Params.MaxHistory)
	require.Equal(t, 4, rec.SavedCount)

	bad := params
	bad.SpeedMode = "warp"
	_, err := h.manager.CreateBatch(ctx, &bad)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestScanFolderSortsNaturally(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"lecture10.mp4", "lecture2.mkv", "notes.txt", "sub/lecture1.mp4", ".hidden/x.mp4"} {
		testsupport.WriteFile(t, filepath.Join(dir, name), 1)
	}

	flat, err := ScanFolder(dir, false)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "lecture2.mkv"),
		filepath.Join(dir, "lecture10.mp4"),
	}, flat)

	deep, err := ScanFolder(dir, true)
	require.NoError(t, err)
	require.Len(t, deep, 3)

	_, err = ScanFolder(filepath.Join(dir, "missing"), false)
	require.ErrorIs(t, err, services.ErrValidation)
}
