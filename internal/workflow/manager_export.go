package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"vidslide/internal/batch"
	"vidslide/internal/events"
	"vidslide/internal/logging"
	"vidslide/internal/packaging"
	"vidslide/internal/services"
	"vidslide/internal/textutil"
)

// ExportResult names the package built for one task.
type ExportResult struct {
	TaskID string `json:"task_id"`
	Name   string `json:"name"`
	File   string `json:"file,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Export packages the slides of completed tasks. Package names are the task
// display names, suffixed where two tasks share a name. One failing package
// does not stop the others; the joined error reports every failure.
func (m *Manager) Export(ctx context.Context, batchID string, ids []string, format packaging.Format) ([]ExportResult, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = packaging.Format(m.cfg.Packaging.DefaultFormat)
	}
	format, err = packaging.ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids = run.batch.TaskIDs(batch.ZoneCompleted)
	}
	if len(ids) == 0 {
		return nil, services.Wrap(services.ErrValidation, "workflow", "export", "no completed tasks to export", nil)
	}

	records := make([]batch.TaskRecord, 0, len(ids))
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		rec, err := run.batch.Task(id)
		if err != nil {
			return nil, err
		}
		if rec.Zone != batch.ZoneCompleted {
			return nil, services.Wrap(services.ErrInvalidTransition, "workflow", "export",
				fmt.Sprintf("task %s is in zone %s; only completed tasks can be exported", id, rec.Zone), nil)
		}
		records = append(records, rec)
		names = append(names, rec.DisplayName)
	}
	names = textutil.Disambiguate(names)

	ctx = services.WithStage(services.WithBatchID(ctx, batchID), "packaging")
	logger := logging.WithContext(ctx, m.logger)
	results := make([]ExportResult, 0, len(records))
	var errs []error
	for i, rec := range records {
		res := ExportResult{TaskID: rec.ID, Name: names[i]}
		file, err := m.exportTask(ctx, run, rec, names[i], format)
		m.metrics.PackageBuilt(string(format), err)
		if err != nil {
			res.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", names[i], err))
			logging.WarnWithContext(logger, "packaging failed", "packaging_failed",
				logging.TaskID(rec.ID),
				logging.String("format", string(format)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the task's slides and free space, then export again"),
				logging.String(logging.FieldImpact, "no package written for this task"),
			)
			m.bus.Publish(batchID, events.TypePackagingError, events.Packaging{
				TaskID:  rec.ID,
				Format:  string(format),
				Message: err.Error(),
			})
		} else {
			res.File = file
			logger.Info("package written",
				logging.TaskID(rec.ID),
				logging.String("file", file),
			)
			m.bus.Publish(batchID, events.TypePackagingDone, events.Packaging{
				TaskID:  rec.ID,
				Format:  string(format),
				Percent: 100,
				File:    file,
			})
			if nerr := m.notifier.NotifyExportCompleted(ctx, names[i], file); nerr != nil {
				logger.Warn("export notification failed", logging.Error(nerr))
			}
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (m *Manager) exportTask(ctx context.Context, run *batchRun, rec batch.TaskRecord, name string, format packaging.Format) (string, error) {
	images, err := listImages(rec.CacheDir())
	if err != nil {
		return "", err
	}
	paths := make([]string, len(images))
	for i, image := range images {
		paths[i] = filepath.Join(rec.CacheDir(), image)
	}
	lastPercent := -10
	return packaging.Package(ctx, packaging.Request{
		Name:      name,
		Images:    paths,
		OutputDir: rec.PackageDir(),
		Format:    format,
		PageSize:  m.cfg.Packaging.PDFPageSize,
		Progress: func(done, total int) {
			percent := done * 100 / max(total, 1)
			if percent/10 == lastPercent/10 && percent != 100 {
				return
			}
			lastPercent = percent
			m.bus.Publish(run.batch.ID(), events.TypePackagingProgress, events.Packaging{
				TaskID:  rec.ID,
				Format:  string(format),
				Percent: percent,
			})
		},
	})
}
