package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"vidslide/internal/batch"
	"vidslide/internal/fileutil"
	"vidslide/internal/logging"
	"vidslide/internal/services"
	"vidslide/internal/textutil"
	"vidslide/internal/video"
)

const thumbnailWidth = 320

// StageVideos adds videos to the staged zone of a batch. Every path must be
// an existing file with a supported video extension. Probe and thumbnail
// failures are logged; the task then fails when it runs.
func (m *Manager) StageVideos(ctx context.Context, batchID string, entries []batch.StageEntry) ([]string, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return nil, err
	}
	for i, entry := range entries {
		path, err := filepath.Abs(strings.TrimSpace(entry.Path))
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "workflow", "stage", entry.Path, err)
		}
		if !video.IsSupported(path) {
			return nil, services.Wrap(services.ErrValidation, "workflow", "stage", fmt.Sprintf("unsupported video format: %s", path), nil)
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "workflow", "stage", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil, services.Wrap(services.ErrValidation, "workflow", "stage", fmt.Sprintf("%s is not a file", path), nil)
		}
		entries[i].Path = path
	}

	ids, err := run.batch.Stage(entries)
	if err != nil {
		return nil, err
	}
	ctx = services.WithBatchID(ctx, batchID)
	for _, id := range ids {
		m.describe(ctx, run, id)
	}
	m.commit(ctx, run)
	m.publishZones(run)
	m.logger.Info("videos staged",
		logging.BatchID(batchID),
		logging.Int("count", len(ids)),
	)
	return ids, nil
}

// describe probes a staged video and renders its thumbnail.
func (m *Manager) describe(ctx context.Context, run *batchRun, id string) {
	rec, err := run.batch.Task(id)
	if err != nil {
		return
	}
	logger := logging.WithContext(services.WithTaskID(ctx, id), m.logger)
	info, err := m.media.Probe(ctx, rec.SourcePath)
	if err != nil {
		logging.WarnWithContext(logger, "video probe failed", "video_probe_failed",
			logging.String("source", rec.SourcePath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the task will fail when processed unless the file is fixed"),
		)
		return
	}
	thumb := filepath.Join(rec.OutputDir, batch.ThumbnailName)
	if err := m.media.Thumbnail(ctx, rec.SourcePath, thumb, info.Duration/10, thumbnailWidth); err != nil {
		logger.Warn("thumbnail generation failed",
			logging.String(logging.FieldEventType, "thumbnail_failed"),
			logging.Error(err),
		)
		thumb = ""
	}
	_ = run.batch.SetMedia(id, info.Duration, info.FrameCount, thumb)
}

// ScanFolder lists supported videos below dir in natural order.
func ScanFolder(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "scan", dir, err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "workflow", "scan", fmt.Sprintf("%s is not a directory", dir), nil)
	}
	var found []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if video.IsSupported(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "scan", dir, err)
	}
	slices.SortFunc(found, func(a, b string) int {
		switch {
		case textutil.NaturalLess(a, b):
			return -1
		case textutil.NaturalLess(b, a):
			return 1
		}
		return 0
	})
	return found, nil
}

// ScanFolder lists supported videos below dir for staging.
func (m *Manager) ScanFolder(dir string, recursive bool) ([]string, error) {
	return ScanFolder(dir, recursive)
}

// Move transfers tasks between zones. Tasks leaving for the staged zone
// lose their artifacts.
func (m *Manager) Move(ctx context.Context, batchID string, ids []string, from, to batch.Zone, position int) error {
	run, err := m.lookup(batchID)
	if err != nil {
		return err
	}
	if err := run.batch.Move(ids, from, to, position); err != nil {
		return err
	}
	if to == batch.ZoneStaged && from != batch.ZoneStaged {
		for _, id := range ids {
			m.clearArtifacts(run, id)
		}
	}
	m.afterZoneChange(ctx, run, ids)
	return nil
}

// MoveToQueue queues staged tasks. position < 0 appends.
func (m *Manager) MoveToQueue(ctx context.Context, batchID string, ids []string, position int) error {
	return m.Move(ctx, batchID, ids, batch.ZoneStaged, batch.ZoneQueued, position)
}

// MoveToStaged returns queued or completed tasks to the staged zone.
func (m *Manager) MoveToStaged(ctx context.Context, batchID string, ids []string) error {
	run, err := m.lookup(batchID)
	if err != nil {
		return err
	}
	byZone := make(map[batch.Zone][]string)
	for _, id := range ids {
		rec, err := run.batch.Task(id)
		if err != nil {
			return err
		}
		byZone[rec.Zone] = append(byZone[rec.Zone], id)
	}
	for _, zone := range batch.Zones {
		if zone == batch.ZoneStaged || len(byZone[zone]) == 0 {
			continue
		}
		if err := m.Move(ctx, batchID, byZone[zone], zone, batch.ZoneStaged, -1); err != nil {
			return err
		}
	}
	return nil
}

// Reorder sets the order of a zone.
func (m *Manager) Reorder(ctx context.Context, batchID string, zone batch.Zone, ids []string) error {
	run, err := m.lookup(batchID)
	if err != nil {
		return err
	}
	if err := run.batch.Reorder(zone, ids); err != nil {
		return err
	}
	m.commit(ctx, run)
	m.publishZones(run)
	return nil
}

// Prioritize makes a queued task the next one dispatched.
func (m *Manager) Prioritize(ctx context.Context, batchID, id string) error {
	run, err := m.lookup(batchID)
	if err != nil {
		return err
	}
	if err := run.batch.Prioritize(id); err != nil {
		return err
	}
	m.commit(ctx, run)
	m.publishZones(run)
	run.signal()
	return nil
}

// Rename changes the display name of a task.
func (m *Manager) Rename(ctx context.Context, batchID, id, name string) error {
	run, err := m.lookup(batchID)
	if err != nil {
		return err
	}
	if err := run.batch.Rename(id, name); err != nil {
		return err
	}
	m.commit(ctx, run)
	m.publishTaskID(run, id, "renamed")
	return nil
}

// Trash moves a task to the trash. Running tasks are cancelled first and
// reach the trash when their worker stops.
func (m *Manager) Trash(ctx context.Context, batchID, id, reason string) (batch.TrashResult, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return batch.TrashResult{}, err
	}
	res, err := run.batch.Trash(id, reason)
	if err != nil {
		return res, err
	}
	m.commit(ctx, run)
	if res.Deferred {
		m.publishTaskID(run, id, "cancelling before trash")
		return res, nil
	}
	m.publishZones(run)
	m.publishTaskID(run, id, "")
	m.publishBatch(run)
	run.signal()
	return res, nil
}

// Restore takes a task out of the trash.
func (m *Manager) Restore(ctx context.Context, batchID, id string, action batch.RestoreAction) error {
	run, err := m.lookup(batchID)
	if err != nil {
		return err
	}
	before, err := run.batch.Restore(id, action)
	if err != nil {
		return err
	}
	switch action {
	case batch.RestorePermanentDelete:
		if err := os.RemoveAll(before.OutputDir); err != nil {
			logging.WarnWithContext(m.logger, "failed to remove task files", "task_cleanup_failed",
				logging.BatchID(batchID),
				logging.TaskID(id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove "+before.OutputDir+" manually"),
			)
		}
	case batch.RestoreToStaged:
		m.clearArtifacts(run, id)
	}
	m.afterZoneChange(ctx, run, nil)
	if action != batch.RestorePermanentDelete {
		m.publishTaskID(run, id, "restored")
	}
	return nil
}

// PermanentlyDelete destroys a trashed task and its files.
func (m *Manager) PermanentlyDelete(ctx context.Context, batchID, id string) error {
	return m.Restore(ctx, batchID, id, batch.RestorePermanentDelete)
}

func (m *Manager) afterZoneChange(ctx context.Context, run *batchRun, ids []string) {
	m.commit(ctx, run)
	m.publishZones(run)
	for _, id := range ids {
		m.publishTaskID(run, id, "")
	}
	m.publishBatch(run)
	run.signal()
}

// clearArtifacts deletes extracted slides and packages of a task.
func (m *Manager) clearArtifacts(run *batchRun, id string) {
	rec, err := run.batch.Task(id)
	if err != nil {
		return
	}
	for _, dir := range []string{rec.CacheDir(), rec.PackageDir()} {
		if err := os.RemoveAll(dir); err != nil {
			logging.WarnWithContext(m.logger, "failed to clear task output", "task_cleanup_failed",
				logging.BatchID(run.batch.ID()),
				logging.TaskID(id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove "+dir+" manually"),
			)
		}
	}
}

func listImages(dir string) ([]string, error) {
	return fileutil.ListFiles(dir, ".jpg", ".jpeg")
}

// ListImages returns the slide file names of a task in order.
func (m *Manager) ListImages(batchID, id string) ([]string, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return nil, err
	}
	rec, err := run.batch.Task(id)
	if err != nil {
		return nil, err
	}
	return listImages(rec.CacheDir())
}

// ListTrashedImages returns the slide file names removed from a task.
func (m *Manager) ListTrashedImages(batchID, id string) ([]string, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return nil, err
	}
	rec, err := run.batch.Task(id)
	if err != nil {
		return nil, err
	}
	return listImages(batch.ImageTrashDir(rec.OutputDir))
}

// TrashImages moves slides of a completed task into its image trash.
func (m *Manager) TrashImages(ctx context.Context, batchID, id string, names []string) (int, error) {
	return m.moveImages(ctx, batchID, id, names, true)
}

// RestoreImages moves slides back from the image trash.
func (m *Manager) RestoreImages(ctx context.Context, batchID, id string, names []string) (int, error) {
	return m.moveImages(ctx, batchID, id, names, false)
}

func (m *Manager) moveImages(ctx context.Context, batchID, id string, names []string, toTrash bool) (int, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return 0, err
	}
	rec, err := run.batch.Task(id)
	if err != nil {
		return 0, err
	}
	if rec.Zone != batch.ZoneCompleted {
		return 0, services.Wrap(services.ErrInvalidTransition, "workflow", "images",
			fmt.Sprintf("task %s is in zone %s; images are managed on completed tasks", id, rec.Zone), nil)
	}
	src, dst := rec.CacheDir(), batch.ImageTrashDir(rec.OutputDir)
	if !toTrash {
		src, dst = dst, src
	}
	var moved int
	var errs []error
	for _, name := range names {
		if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			errs = append(errs, services.Wrap(services.ErrValidation, "workflow", "images", fmt.Sprintf("invalid image name %q", name), nil))
			continue
		}
		if err := fileutil.MoveFile(filepath.Join(src, name), filepath.Join(dst, name)); err != nil {
			errs = append(errs, err)
			continue
		}
		moved++
	}
	if moved > 0 {
		images, err := listImages(rec.CacheDir())
		if err != nil {
			return moved, err
		}
		if err := run.batch.SetSavedCount(id, len(images)); err != nil {
			return moved, err
		}
		m.commit(ctx, run)
		m.publishTaskID(run, id, "")
	}
	return moved, errors.Join(errs...)
}
