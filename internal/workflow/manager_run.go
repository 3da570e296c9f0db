package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vidslide/internal/batch"
	"vidslide/internal/events"
	"vidslide/internal/extract"
	"vidslide/internal/logging"
	"vidslide/internal/notifications"
	"vidslide/internal/services"
)

// Start switches a batch to processing and launches its dispatcher. params,
// when non-nil, override the batch defaults for tasks dispatched from now on.
func (m *Manager) Start(ctx context.Context, batchID string, params *extract.Params) error {
	run, err := m.lookup(batchID)
	if err != nil {
		return err
	}
	if err := run.batch.Start(params); err != nil {
		return err
	}
	m.commit(ctx, run)
	m.publishBatch(run)

	queued := 0
	for _, id := range run.batch.TaskIDs(batch.ZoneQueued) {
		if rec, err := run.batch.Task(id); err == nil && rec.Status == batch.StatusQueued {
			queued++
		}
	}
	m.metrics.BatchStarted()
	if err := m.notifier.NotifyBatchStarted(ctx, batchID, queued); err != nil {
		m.logger.Warn("batch start notification failed",
			logging.BatchID(batchID),
			logging.Error(err),
		)
	}
	m.logger.Info("batch processing started",
		logging.BatchID(batchID),
		logging.Int("queued", queued),
		logging.Int("max_workers", run.batch.MaxWorkers()),
	)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return services.Wrap(services.ErrInterrupted, "workflow", "start", "manager is shutting down", nil)
	}
	m.wg.Add(1)
	go m.dispatch(run)
	return nil
}

// PauseAfterCurrent stops dispatching new tasks; running tasks finish.
func (m *Manager) PauseAfterCurrent(ctx context.Context, batchID string) error {
	run, err := m.lookup(batchID)
	if err != nil {
		return err
	}
	if err := run.batch.PauseAfterCurrent(); err != nil {
		return err
	}
	m.commit(ctx, run)
	m.publishBatch(run)
	run.signal()
	return nil
}

// SetWorkerLimit changes max_workers of an idle batch and returns the
// effective limit after clamping.
func (m *Manager) SetWorkerLimit(ctx context.Context, batchID string, n int) (int, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return 0, err
	}
	applied, err := run.batch.SetWorkerLimit(n, m.ceiling)
	if err != nil {
		return 0, err
	}
	m.commit(ctx, run)
	m.publishBatch(run)
	return applied, nil
}

// CancelTask stops a queued or running task with the given intent.
func (m *Manager) CancelTask(ctx context.Context, batchID, id string, intent batch.CancelIntent) (batch.CancelResult, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return batch.CancelResult{}, err
	}
	res, err := run.batch.CancelTask(id, intent)
	if err != nil {
		return res, err
	}
	m.commit(ctx, run)
	if res.Pending {
		m.publishTaskID(run, id, fmt.Sprintf("%s requested", intent))
		return res, nil
	}
	if intent == batch.IntentSkip {
		m.metrics.TaskSkipped(false)
	}
	m.publishTaskID(run, id, "")
	m.publishBatch(run)
	run.signal()
	return res, nil
}

// Retry re-queues a stopped task. Tasks that restart from frame zero lose
// their earlier artifacts.
func (m *Manager) Retry(ctx context.Context, batchID, id string) (batch.RetryResult, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return batch.RetryResult{}, err
	}
	res, err := run.batch.Retry(id)
	if err != nil {
		return res, err
	}
	if res.DiscardOutput {
		m.clearArtifacts(run, id)
	}
	m.metrics.TaskRetried()
	m.afterZoneChange(ctx, run, []string{id})
	return res, nil
}

// dispatch launches workers for a processing batch until it settles.
func (m *Manager) dispatch(run *batchRun) {
	defer m.wg.Done()
	b := run.batch
	ctx := services.WithBatchID(m.ctx, b.ID())
	logger := logging.WithContext(ctx, m.logger)

	slots := make(chan struct{}, b.MaxWorkers())
	heartbeat := time.NewTicker(m.heartbeatInterval())
	defer heartbeat.Stop()

	for {
		if ctx.Err() != nil {
			logger.Info("dispatcher stopped for shutdown", logging.Int("running", b.RunningCount()))
			return
		}
		if b.Dispatching() {
			if id := b.NextEligible(); id != "" {
				select {
				case slots <- struct{}{}:
					if m.launch(ctx, run, id, slots) {
						continue
					}
					<-slots
					continue
				default:
				}
			}
		}
		if b.Settle() {
			m.settled(ctx, run)
			return
		}
		select {
		case <-run.wake:
		case <-heartbeat.C:
			m.publishBatch(run)
			m.checkDiskSpace(run, "")
		case <-ctx.Done():
		}
	}
}

func (m *Manager) heartbeatInterval() time.Duration {
	if secs := m.cfg.Workers.HeartbeatInterval; secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 15 * time.Second
}

// launch claims a task and starts its worker. It reports false when no
// worker was started; the caller then releases the slot.
func (m *Manager) launch(ctx context.Context, run *batchRun, id string, slots chan struct{}) bool {
	if !m.checkDiskSpace(run, id) {
		rec, err := run.batch.Skip(id, "skipped: low disk space")
		if err != nil {
			return false
		}
		m.metrics.TaskSkipped(true)
		m.commit(ctx, run)
		m.publishTask(run, rec, "")
		m.publishBatch(run)
		return false
	}
	if !m.checkReadable(ctx, run, id) {
		return false
	}
	assignment, err := run.batch.Claim(id)
	if err != nil {
		// the task was stopped or the batch paused between selection and claim
		m.logger.Debug("claim skipped",
			logging.BatchID(run.batch.ID()),
			logging.TaskID(id),
			logging.Error(err),
		)
		return false
	}
	m.commit(ctx, run)
	m.publishTaskID(run, id, "")
	m.publishBatch(run)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			<-slots
			run.signal()
		}()
		m.runTask(ctx, run, assignment)
	}()
	return true
}

// checkReadable probes the task's source before it is claimed. An
// unreadable video fails the task without it ever entering the running
// status; other probe failures are left for the engine to report.
func (m *Manager) checkReadable(ctx context.Context, run *batchRun, id string) bool {
	rec, err := run.batch.Task(id)
	if err != nil {
		return false
	}
	_, err = m.media.Probe(ctx, rec.SourcePath)
	if !errors.Is(err, services.ErrVideoUnreadable) {
		return true
	}
	kind, message, hint := describeFailure(err)
	rec, rerr := run.batch.Reject(id, kind, message)
	if rerr != nil {
		return false
	}
	m.commit(ctx, run)
	m.publishTask(run, rec, "")
	m.publishBatch(run)

	logger := logging.WithContext(services.WithTaskID(ctx, id), m.logger)
	logging.ErrorWithContext(logger, "task failed", "task_failed",
		logging.String("task", rec.DisplayName),
		logging.String("error_kind", kind),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "only this task stopped; the batch continues"),
	)
	if nerr := m.notifier.NotifyTaskError(context.WithoutCancel(ctx), run.batch.ID(), rec.DisplayName, message); nerr != nil {
		logger.Warn("task error notification failed", logging.Error(nerr))
	}
	return false
}

// checkDiskSpace warns when the output directory runs low. It reports false
// when a task about to start should be skipped.
func (m *Manager) checkDiskSpace(run *batchRun, taskID string) bool {
	minMB := m.cfg.Workers.DiskWarningMB
	if minMB <= 0 {
		return true
	}
	free, err := m.diskFree(run.batch.Dir())
	if err != nil {
		m.logger.Debug("disk space probe failed", logging.Error(err))
		return true
	}
	if free >= uint64(minMB) {
		return true
	}
	logging.WarnWithContext(m.logger, "low disk space", "disk_space_low",
		logging.BatchID(run.batch.ID()),
		logging.TaskID(taskID),
		logging.Uint64("free_mb", free),
		logging.Int("minimum_mb", minMB),
		logging.String(logging.FieldErrorHint, "free space in the output directory, then retry skipped tasks"),
		logging.Alert("disk_space"),
	)
	m.bus.Publish(run.batch.ID(), events.TypeDiskSpaceWarning, events.DiskSpaceWarning{
		TaskID:    taskID,
		Path:      run.batch.Dir(),
		FreeMB:    free,
		MinimumMB: uint64(minMB),
	})
	return false
}

// settled announces that a batch went idle.
func (m *Manager) settled(ctx context.Context, run *batchRun) {
	m.commit(ctx, run)
	m.publishBatch(run)
	snap := run.batch.Snapshot()
	var elapsed time.Duration
	if !snap.StartedAt.IsZero() {
		elapsed = m.now().Sub(snap.StartedAt)
	}
	summary := notifications.BatchSummary{
		BatchID:     snap.ID,
		Completed:   snap.CompletedCount,
		Failed:      snap.FailedCount,
		Skipped:     snap.SkippedCount,
		TotalImages: snap.TotalImages,
		Duration:    elapsed,
	}
	m.logger.Info("batch idle",
		logging.BatchID(snap.ID),
		logging.Int("completed", snap.CompletedCount),
		logging.Int("failed", snap.FailedCount),
		logging.Int("skipped", snap.SkippedCount),
		logging.Int("total_images", snap.TotalImages),
		logging.Duration("elapsed", elapsed),
	)
	if err := m.notifier.NotifyBatchIdle(ctx, summary); err != nil {
		m.logger.Warn("batch idle notification failed",
			logging.BatchID(snap.ID),
			logging.Error(err),
		)
	}
}
