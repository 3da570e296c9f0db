package workflow

import (
	"context"

	"vidslide/internal/batch"
	"vidslide/internal/events"
	"vidslide/internal/logging"
)

// saveRun writes the batch document. Saves of one batch are serialised so an
// older snapshot never overwrites a newer one.
func (m *Manager) saveRun(ctx context.Context, run *batchRun) error {
	run.saveMu.Lock()
	defer run.saveMu.Unlock()
	snap := run.batch.Snapshot()
	if err := m.store.Save(ctx, snap); err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(m.logger, "failed to persist batch", "batch_persist_failed",
			logging.BatchID(snap.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
		)
		return err
	}
	return nil
}

// commit persists a mutation that already happened in memory. Failures are
// logged and remembered but do not undo the mutation.
func (m *Manager) commit(ctx context.Context, run *batchRun) {
	_ = m.saveRun(context.WithoutCancel(ctx), run)
}

func (m *Manager) publishZones(run *batchRun) {
	zones := make(map[string][]string, len(batch.Zones))
	for _, zone := range batch.Zones {
		ids := run.batch.TaskIDs(zone)
		if ids == nil {
			ids = []string{}
		}
		zones[string(zone)] = ids
	}
	m.bus.Publish(run.batch.ID(), events.TypeZoneChange, events.ZoneChange{Zones: zones})
}

func (m *Manager) publishTask(run *batchRun, rec batch.TaskRecord, message string) {
	if message == "" {
		message = rec.ErrorMessage
	}
	m.bus.Publish(run.batch.ID(), events.TypeTaskStatus, events.TaskStatus{
		TaskID:         rec.ID,
		Zone:           string(rec.Zone),
		Status:         string(rec.Status),
		SavedCount:     rec.SavedCount,
		RetryCount:     rec.RetryCount,
		Message:        message,
		GlobalProgress: run.batch.GlobalProgress(),
	})
}

func (m *Manager) publishTaskID(run *batchRun, id, message string) {
	rec, err := run.batch.Task(id)
	if err != nil {
		return
	}
	m.publishTask(run, rec, message)
}

func (m *Manager) publishBatch(run *batchRun) {
	snap := run.batch.Snapshot()
	running := snap.RunningIDs
	if running == nil {
		running = []string{}
	}
	m.bus.Publish(snap.ID, events.TypeBatchStatus, events.BatchStatus{
		Status:         string(snap.Status),
		GlobalProgress: snap.GlobalProgress,
		CompletedCount: snap.CompletedCount,
		FailedCount:    snap.FailedCount,
		SkippedCount:   snap.SkippedCount,
		TotalImages:    snap.TotalImages,
		RunningIDs:     running,
		MaxWorkers:     snap.MaxWorkers,
	})
}
