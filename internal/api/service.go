package api

import (
	"context"
	"strings"

	"vidslide/internal/batch"
	"vidslide/internal/events"
	"vidslide/internal/extract"
	"vidslide/internal/packaging"
	"vidslide/internal/services"
	"vidslide/internal/textutil"
	"vidslide/internal/workflow"
)

// Workflow abstracts the manager operations exposed over the transports.
type Workflow interface {
	CreateBatch(ctx context.Context, params *extract.Params) (batch.Snapshot, error)
	ListBatches() []batch.Summary
	BatchStatus(batchID string) (batch.Snapshot, error)
	DeleteBatch(ctx context.Context, batchID string, removeFiles bool) error
	StageVideos(ctx context.Context, batchID string, entries []batch.StageEntry) ([]string, error)
	ScanFolder(dir string, recursive bool) ([]string, error)
	Move(ctx context.Context, batchID string, ids []string, from, to batch.Zone, position int) error
	MoveToStaged(ctx context.Context, batchID string, ids []string) error
	Reorder(ctx context.Context, batchID string, zone batch.Zone, ids []string) error
	Prioritize(ctx context.Context, batchID, id string) error
	Rename(ctx context.Context, batchID, id, name string) error
	Trash(ctx context.Context, batchID, id, reason string) (batch.TrashResult, error)
	Restore(ctx context.Context, batchID, id string, action batch.RestoreAction) error
	PermanentlyDelete(ctx context.Context, batchID, id string) error
	Start(ctx context.Context, batchID string, params *extract.Params) error
	PauseAfterCurrent(ctx context.Context, batchID string) error
	SetWorkerLimit(ctx context.Context, batchID string, n int) (int, error)
	CancelTask(ctx context.Context, batchID, id string, intent batch.CancelIntent) (batch.CancelResult, error)
	Retry(ctx context.Context, batchID, id string) (batch.RetryResult, error)
	ListImages(batchID, id string) ([]string, error)
	ListTrashedImages(batchID, id string) ([]string, error)
	TrashImages(ctx context.Context, batchID, id string, names []string) (int, error)
	RestoreImages(ctx context.Context, batchID, id string, names []string) (int, error)
	Export(ctx context.Context, batchID string, ids []string, format packaging.Format) ([]workflow.ExportResult, error)
}

// EventSource serves event history for polling clients.
type EventSource interface {
	Fetch(ctx context.Context, batchID string, since uint64, limit int, wait bool) ([]events.Event, uint64, error)
}

// BatchService validates transport requests and forwards them to the
// workflow manager.
type BatchService struct {
	wf       Workflow
	events   EventSource
	defaults extract.Params
}

// NewBatchService constructs a BatchService. defaults seed parameter
// overrides on batch creation.
func NewBatchService(wf Workflow, source EventSource, defaults extract.Params) *BatchService {
	if wf == nil {
		return nil
	}
	return &BatchService{wf: wf, events: source, defaults: defaults}
}

func requireID(kind, value string) error {
	if strings.TrimSpace(value) == "" {
		return services.Wrap(services.ErrValidation, "api", kind, kind+" is required", nil)
	}
	return nil
}

// CreateBatch creates an empty batch.
func (s *BatchService) CreateBatch(ctx context.Context, req CreateBatchRequest) (BatchResponse, error) {
	var params *extract.Params
	if !req.Params.IsZero() {
		resolved, err := req.Params.Apply(s.defaults)
		if err != nil {
			return BatchResponse{}, err
		}
		params = &resolved
	}
	snap, err := s.wf.CreateBatch(ctx, params)
	if err != nil {
		return BatchResponse{}, err
	}
	return BatchResponse{Batch: snap}, nil
}

// ListBatches returns every batch, oldest first.
func (s *BatchService) ListBatches() BatchListResponse {
	return BatchListResponse{Batches: s.wf.ListBatches()}
}

// BatchStatus returns the full snapshot of a batch.
func (s *BatchService) BatchStatus(req BatchRequest) (BatchResponse, error) {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return BatchResponse{}, err
	}
	snap, err := s.wf.BatchStatus(req.BatchID)
	if err != nil {
		return BatchResponse{}, err
	}
	return BatchResponse{Batch: snap}, nil
}

// DeleteBatch removes an idle batch.
func (s *BatchService) DeleteBatch(ctx context.Context, req DeleteBatchRequest) error {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return err
	}
	return s.wf.DeleteBatch(ctx, req.BatchID, req.RemoveFiles)
}

// Stage adds explicit videos and, optionally, every video found in a folder.
func (s *BatchService) Stage(ctx context.Context, req StageRequest) (StageResponse, error) {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return StageResponse{}, err
	}
	entries := append([]batch.StageEntry(nil), req.Videos...)
	if folder := strings.TrimSpace(req.Folder); folder != "" {
		paths, err := s.wf.ScanFolder(folder, req.Recursive)
		if err != nil {
			return StageResponse{}, err
		}
		for _, path := range paths {
			entries = append(entries, batch.StageEntry{Path: path})
		}
	}
	if len(entries) == 0 {
		return StageResponse{}, services.Wrap(services.ErrValidation, "api", "stage", "no videos to stage", nil)
	}
	if series := strings.TrimSpace(req.NameSeries); series != "" {
		unnamed := 0
		for _, entry := range entries {
			if strings.TrimSpace(entry.Name) == "" {
				unnamed++
			}
		}
		names := textutil.IncrementNames(series, unnamed)
		for i := range entries {
			if strings.TrimSpace(entries[i].Name) == "" {
				entries[i].Name, names = names[0], names[1:]
			}
		}
	}
	ids, err := s.wf.StageVideos(ctx, req.BatchID, entries)
	if err != nil {
		return StageResponse{}, err
	}
	return StageResponse{IDs: ids}, nil
}

// Move transfers tasks between zones. An empty From with To staged collects
// the tasks from whichever zone they are in.
func (s *BatchService) Move(ctx context.Context, req MoveRequest) error {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return err
	}
	if len(req.IDs) == 0 {
		return services.Wrap(services.ErrValidation, "api", "move", "no task ids", nil)
	}
	to, err := batch.ParseZone(req.To)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.From) == "" && to == batch.ZoneStaged {
		return s.wf.MoveToStaged(ctx, req.BatchID, req.IDs)
	}
	from, err := batch.ParseZone(req.From)
	if err != nil {
		return err
	}
	position := -1
	if req.Position != nil {
		position = *req.Position
	}
	return s.wf.Move(ctx, req.BatchID, req.IDs, from, to, position)
}

// Reorder replaces the order of one zone.
func (s *BatchService) Reorder(ctx context.Context, req ReorderRequest) error {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return err
	}
	zone, err := batch.ParseZone(req.Zone)
	if err != nil {
		return err
	}
	return s.wf.Reorder(ctx, req.BatchID, zone, req.IDs)
}

// Prioritize moves a queued task to the front of the waiting tasks.
func (s *BatchService) Prioritize(ctx context.Context, req TaskRequest) error {
	if err := requireTask(req.BatchID, req.TaskID); err != nil {
		return err
	}
	return s.wf.Prioritize(ctx, req.BatchID, req.TaskID)
}

// Rename edits a task display name.
func (s *BatchService) Rename(ctx context.Context, req RenameRequest) error {
	if err := requireTask(req.BatchID, req.TaskID); err != nil {
		return err
	}
	return s.wf.Rename(ctx, req.BatchID, req.TaskID, req.Name)
}

// Trash moves a task to the trash.
func (s *BatchService) Trash(ctx context.Context, req TrashRequest) (TrashResponse, error) {
	if err := requireTask(req.BatchID, req.TaskID); err != nil {
		return TrashResponse{}, err
	}
	res, err := s.wf.Trash(ctx, req.BatchID, req.TaskID, req.Reason)
	if err != nil {
		return TrashResponse{}, err
	}
	return TrashResponse{Deferred: res.Deferred}, nil
}

// Restore takes a task out of the trash.
func (s *BatchService) Restore(ctx context.Context, req RestoreRequest) error {
	if err := requireTask(req.BatchID, req.TaskID); err != nil {
		return err
	}
	action, err := batch.ParseRestoreAction(req.Action)
	if err != nil {
		return err
	}
	return s.wf.Restore(ctx, req.BatchID, req.TaskID, action)
}

// PermanentlyDelete removes a trashed task and its files.
func (s *BatchService) PermanentlyDelete(ctx context.Context, req TaskRequest) error {
	if err := requireTask(req.BatchID, req.TaskID); err != nil {
		return err
	}
	return s.wf.PermanentlyDelete(ctx, req.BatchID, req.TaskID)
}

// Start begins processing. Overrides layer on the batch parameters.
func (s *BatchService) Start(ctx context.Context, req StartRequest) error {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return err
	}
	var params *extract.Params
	if !req.Params.IsZero() {
		snap, err := s.wf.BatchStatus(req.BatchID)
		if err != nil {
			return err
		}
		resolved, err := req.Params.Apply(snap.Params)
		if err != nil {
			return err
		}
		params = &resolved
	}
	return s.wf.Start(ctx, req.BatchID, params)
}

// Pause stops dispatching after the running tasks.
func (s *BatchService) Pause(ctx context.Context, req BatchRequest) error {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return err
	}
	return s.wf.PauseAfterCurrent(ctx, req.BatchID)
}

// SetWorkers changes the worker limit of an idle batch.
func (s *BatchService) SetWorkers(ctx context.Context, req WorkersRequest) (WorkersResponse, error) {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return WorkersResponse{}, err
	}
	applied, err := s.wf.SetWorkerLimit(ctx, req.BatchID, req.Workers)
	if err != nil {
		return WorkersResponse{}, err
	}
	return WorkersResponse{Applied: applied}, nil
}

// Cancel stops a task with the requested intent.
func (s *BatchService) Cancel(ctx context.Context, req CancelRequest) (CancelResponse, error) {
	if err := requireTask(req.BatchID, req.TaskID); err != nil {
		return CancelResponse{}, err
	}
	intent, err := batch.ParseCancelIntent(strings.ToLower(strings.TrimSpace(req.Intent)))
	if err != nil {
		return CancelResponse{}, err
	}
	res, err := s.wf.CancelTask(ctx, req.BatchID, req.TaskID, intent)
	if err != nil {
		return CancelResponse{}, err
	}
	return CancelResponse{Status: string(res.Status), Pending: res.Pending}, nil
}

// Retry re-queues a stopped task.
func (s *BatchService) Retry(ctx context.Context, req TaskRequest) (RetryResponse, error) {
	if err := requireTask(req.BatchID, req.TaskID); err != nil {
		return RetryResponse{}, err
	}
	res, err := s.wf.Retry(ctx, req.BatchID, req.TaskID)
	if err != nil {
		return RetryResponse{}, err
	}
	return RetryResponse{Resumed: res.Resumed, ResumeFrame: res.ResumeFrame, SavedCount: res.SavedCount}, nil
}

// ListImages lists kept or trashed images of a task.
func (s *BatchService) ListImages(req ImagesRequest) (ImagesResponse, error) {
	if err := requireTask(req.BatchID, req.TaskID); err != nil {
		return ImagesResponse{}, err
	}
	list := s.wf.ListImages
	if req.Trashed {
		list = s.wf.ListTrashedImages
	}
	images, err := list(req.BatchID, req.TaskID)
	if err != nil {
		return ImagesResponse{}, err
	}
	return ImagesResponse{Images: images}, nil
}

// TrashImages moves named images into the task trash.
func (s *BatchService) TrashImages(ctx context.Context, req ImagesRequest) (ImagesResponse, error) {
	return s.moveImages(ctx, req, s.wf.TrashImages)
}

// RestoreImages moves named images back out of the task trash.
func (s *BatchService) RestoreImages(ctx context.Context, req ImagesRequest) (ImagesResponse, error) {
	return s.moveImages(ctx, req, s.wf.RestoreImages)
}

func (s *BatchService) moveImages(ctx context.Context, req ImagesRequest, move func(context.Context, string, string, []string) (int, error)) (ImagesResponse, error) {
	if err := requireTask(req.BatchID, req.TaskID); err != nil {
		return ImagesResponse{}, err
	}
	if len(req.Names) == 0 {
		return ImagesResponse{}, services.Wrap(services.ErrValidation, "api", "images", "no image names", nil)
	}
	moved, err := move(ctx, req.BatchID, req.TaskID, req.Names)
	return ImagesResponse{Moved: moved}, err
}

// Export packages completed tasks. Partial failures still return results.
func (s *BatchService) Export(ctx context.Context, req ExportRequest) (ExportResponse, error) {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return ExportResponse{}, err
	}
	results, err := s.wf.Export(ctx, req.BatchID, req.IDs, packaging.Format(strings.ToLower(strings.TrimSpace(req.Format))))
	if len(results) > 0 {
		resp := ExportResponse{Results: results}
		if err != nil {
			resp.Error = err.Error()
		}
		return resp, nil
	}
	if err != nil {
		return ExportResponse{}, err
	}
	return ExportResponse{Results: results}, nil
}

// Events returns event history after the requested cursor.
func (s *BatchService) Events(ctx context.Context, req EventsRequest) (EventsResponse, error) {
	if err := requireID("batch_id", req.BatchID); err != nil {
		return EventsResponse{}, err
	}
	if s.events == nil {
		return EventsResponse{Next: req.Since}, nil
	}
	if _, err := s.wf.BatchStatus(req.BatchID); err != nil {
		return EventsResponse{}, err
	}
	evts, next, err := s.events.Fetch(ctx, req.BatchID, req.Since, req.Limit, req.Wait)
	if err != nil && ctx.Err() == nil {
		return EventsResponse{}, err
	}
	return EventsResponse{Events: evts, Next: next}, nil
}

func requireTask(batchID, taskID string) error {
	if err := requireID("batch_id", batchID); err != nil {
		return err
	}
	return requireID("task_id", taskID)
}
