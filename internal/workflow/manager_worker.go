package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"vidslide/internal/batch"
	"vidslide/internal/events"
	"vidslide/internal/extract"
	"vidslide/internal/logging"
	"vidslide/internal/services"
)

const progressBuffer = 32

// runTask executes one assignment and records its outcome on the task.
func (m *Manager) runTask(ctx context.Context, run *batchRun, a batch.Assignment) {
	ctx = services.WithTaskID(ctx, a.TaskID)
	ctx = services.WithStage(ctx, "extract")
	logger := logging.WithContext(ctx, m.logger)

	m.metrics.WorkerStarted()
	started := m.now()
	logger.Info("worker started",
		logging.String("task", a.DisplayName),
		logging.String("source", a.Source),
		logging.Int64("start_frame", a.StartFrame),
		logging.Int("saved_offset", a.SavedOffset),
	)

	result, err := m.execute(ctx, run, a, logger)
	rec := m.finish(ctx, run, a, result, err, logger)
	m.metrics.WorkerStopped(string(rec.Status), m.now().Sub(started), result.Saved)
}

// execute runs the extraction engine. A panic inside the run becomes the
// task's error instead of taking the daemon down.
func (m *Manager) execute(ctx context.Context, run *batchRun, a batch.Assignment, logger *slog.Logger) (result extract.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
			logging.ErrorWithContext(logger, "worker panicked", "worker_panic",
				logging.Error(err),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "the task can be retried; report the stack if it repeats"),
			)
		}
	}()

	if a.StartFrame == 0 {
		if err := clearCache(a.CacheDir()); err != nil {
			return extract.Result{}, services.Wrap(services.ErrConfiguration, "workflow", "clear cache", a.CacheDir(), err)
		}
	}

	progress := make(chan extract.Progress, progressBuffer)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		m.drainProgress(ctx, run, a, progress, logger)
	}()
	defer func() {
		close(progress)
		<-drained
	}()

	return m.engine.Run(ctx, extract.Request{
		Source:      a.Source,
		OutputDir:   a.CacheDir(),
		Params:      a.Params,
		StartFrame:  a.StartFrame,
		SavedOffset: a.SavedOffset,
		Progress:    progress,
		Cancel:      a.Cancel,
	})
}

// drainProgress applies worker progress to the task, publishes it and
// periodically persists the batch.
func (m *Manager) drainProgress(ctx context.Context, run *batchRun, a batch.Assignment, progress <-chan extract.Progress, logger *slog.Logger) {
	sampler := logging.NewProgressSampler(10)
	interval := time.Duration(m.cfg.Workers.MetaSaveInterval) * time.Second
	lastSave := m.now()
	for p := range progress {
		rec, global, ok := run.batch.ApplyProgress(a.TaskID, p)
		if !ok {
			continue
		}
		m.bus.Publish(a.BatchID, events.TypeTaskProgress, events.TaskProgress{
			TaskID:         a.TaskID,
			Progress:       rec.Progress,
			SavedCount:     rec.SavedCount,
			Frame:          p.Frame,
			TotalFrames:    rec.TotalFrames,
			ElapsedSeconds: rec.ElapsedSeconds,
			ETASeconds:     rec.ETASeconds,
			GlobalProgress: global,
		})
		if sampler.ShouldLog(rec.Progress) {
			logger.Info("extraction progress",
				logging.Int("percent", rec.Progress),
				logging.Int("saved", rec.SavedCount),
				logging.Float64("eta_seconds", rec.ETASeconds),
			)
		}
		if interval > 0 && m.now().Sub(lastSave) >= interval {
			lastSave = m.now()
			m.commit(ctx, run)
		}
	}
}

// finish converts the run result into an outcome and records it.
func (m *Manager) finish(ctx context.Context, run *batchRun, a batch.Assignment, result extract.Result, err error, logger *slog.Logger) batch.TaskRecord {
	if ctx.Err() != nil && !a.Cancel.Cancelled() {
		// daemon shutdown: keep the work so the task resumes after restart
		a.Cancel.Request(true)
		result.Interrupted = true
		err = nil
	}
	outcome := batch.Outcome{Result: result, Err: err}
	var hint string
	if err != nil {
		outcome.Kind, outcome.Message, hint = describeFailure(err)
	}

	rec, ferr := run.batch.Finish(a.TaskID, outcome)
	if ferr != nil {
		logging.ErrorWithContext(logger, "failed to record task outcome", "task_finish_failed",
			logging.Error(ferr),
			logging.String(logging.FieldErrorHint, "restart the daemon to recover the task state"),
		)
		return rec
	}
	m.commit(ctx, run)
	if rec.Zone != batch.ZoneQueued {
		m.publishZones(run)
	}
	m.publishTask(run, rec, "")
	m.publishBatch(run)

	switch rec.Status {
	case batch.StatusError:
		logging.ErrorWithContext(logger, "task failed", "task_failed",
			logging.String("task", a.DisplayName),
			logging.String("error_kind", outcome.Kind),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, "only this task stopped; the batch continues"),
		)
		if nerr := m.notifier.NotifyTaskError(context.WithoutCancel(ctx), a.BatchID, a.DisplayName, outcome.Message); nerr != nil {
			logger.Warn("task error notification failed", logging.Error(nerr))
		}
	default:
		logger.Info("worker stopped",
			logging.String("task", a.DisplayName),
			logging.String("status", string(rec.Status)),
			logging.String("zone", string(rec.Zone)),
			logging.Int("saved", rec.SavedCount),
			logging.Duration("elapsed", result.Elapsed),
		)
	}
	return rec
}

// panicError classifies a recovered panic.
func panicError(r any) error {
	var rerr runtime.Error
	if e, ok := r.(error); ok && errors.As(e, &rerr) {
		msg := rerr.Error()
		if strings.Contains(msg, "out of memory") || strings.Contains(msg, "makeslice") {
			return services.Wrap(services.ErrResourceExhausted, "workflow", "worker", "allocation failed", rerr)
		}
		return fmt.Errorf("worker panic: %w", rerr)
	}
	return fmt.Errorf("worker panic: %v", r)
}

// clearCache removes slides left by an earlier run, including trashed ones.
func clearCache(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// describeFailure returns the error kind, the message recorded on the task
// and the operator hint for a failed run.
func describeFailure(err error) (kind, message, hint string) {
	k, hint := services.Classify(err)
	message = err.Error()
	if hint != "" {
		message = fmt.Sprintf("%s. %s", err.Error(), hint)
	}
	return string(k), message, hint
}
