package api

import (
	"vidslide/internal/batch"
	"vidslide/internal/events"
	"vidslide/internal/logging"
	"vidslide/internal/workflow"
)

// WorkflowStatus summarizes manager state for status displays.
type WorkflowStatus struct {
	Batches        int               `json:"batches"`
	Processing     int               `json:"processing"`
	RunningWorkers int               `json:"running_workers"`
	LastError      string            `json:"last_error,omitempty"`
	Health         []ComponentHealth `json:"health"`
}

// ComponentHealth mirrors readiness reporting for daemon components.
type ComponentHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"database_path"`
	LockFilePath string             `json:"lock_file_path"`
	OutputDir    string             `json:"output_dir"`
	APIBind      string             `json:"api_bind,omitempty"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// CreateBatchRequest creates an empty batch.
type CreateBatchRequest struct {
	Params *ParamsOverride `json:"params,omitempty"`
}

// BatchRequest addresses a single batch.
type BatchRequest struct {
	BatchID string `json:"batch_id"`
}

// BatchResponse carries a full batch snapshot.
type BatchResponse struct {
	Batch batch.Snapshot `json:"batch"`
}

// BatchListResponse lists every known batch.
type BatchListResponse struct {
	Batches []batch.Summary `json:"batches"`
}

// DeleteBatchRequest removes an idle batch.
type DeleteBatchRequest struct {
	BatchID     string `json:"batch_id"`
	RemoveFiles bool   `json:"remove_files"`
}

// StageRequest adds videos to the staged zone. Folder, when set, is scanned
// for supported videos which are appended after Videos. NameSeries names
// every unnamed video by continuing a numbered series ("Lecture 1",
// "Lecture 2", ...).
type StageRequest struct {
	BatchID    string             `json:"batch_id"`
	Videos     []batch.StageEntry `json:"videos,omitempty"`
	Folder     string             `json:"folder,omitempty"`
	Recursive  bool               `json:"recursive,omitempty"`
	NameSeries string             `json:"name_series,omitempty"`
}

// StageResponse lists the ids created by a stage request in input order.
type StageResponse struct {
	IDs []string `json:"ids"`
}

// MoveRequest transfers tasks between zones. A nil Position appends.
type MoveRequest struct {
	BatchID  string   `json:"batch_id"`
	IDs      []string `json:"ids"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Position *int     `json:"position,omitempty"`
}

// ReorderRequest replaces the order of a zone.
type ReorderRequest struct {
	BatchID string   `json:"batch_id"`
	Zone    string   `json:"zone"`
	IDs     []string `json:"ids"`
}

// TaskRequest addresses a single task.
type TaskRequest struct {
	BatchID string `json:"batch_id"`
	TaskID  string `json:"task_id"`
}

// RenameRequest edits a task display name.
type RenameRequest struct {
	BatchID string `json:"batch_id"`
	TaskID  string `json:"task_id"`
	Name    string `json:"name"`
}

// TrashRequest moves a task to the trashed zone.
type TrashRequest struct {
	BatchID string `json:"batch_id"`
	TaskID  string `json:"task_id"`
	Reason  string `json:"reason,omitempty"`
}

// TrashResponse reports whether the trash waits for a running worker.
type TrashResponse struct {
	Deferred bool `json:"deferred"`
}

// RestoreRequest takes a task out of the trash.
type RestoreRequest struct {
	BatchID string `json:"batch_id"`
	TaskID  string `json:"task_id"`
	Action  string `json:"action"`
}

// StartRequest starts processing with optional parameter overrides.
type StartRequest struct {
	BatchID string          `json:"batch_id"`
	Params  *ParamsOverride `json:"params,omitempty"`
}

// WorkersRequest changes the worker limit of an idle batch.
type WorkersRequest struct {
	BatchID string `json:"batch_id"`
	Workers int    `json:"workers"`
}

// WorkersResponse reports the limit applied after clamping.
type WorkersResponse struct {
	Applied int `json:"applied"`
}

// CancelRequest stops a queued or running task.
type CancelRequest struct {
	BatchID string `json:"batch_id"`
	TaskID  string `json:"task_id"`
	Intent  string `json:"intent"`
}

// CancelResponse reports the task status after a cancel request.
type CancelResponse struct {
	Status  string `json:"status"`
	Pending bool   `json:"pending"`
}

// RetryResponse reports how a retried task will run.
type RetryResponse struct {
	Resumed     bool  `json:"resumed"`
	ResumeFrame int64 `json:"resume_frame"`
	SavedCount  int   `json:"saved_count"`
}

// ImagesRequest lists, trashes or restores task images.
type ImagesRequest struct {
	BatchID string   `json:"batch_id"`
	TaskID  string   `json:"task_id"`
	Names   []string `json:"names,omitempty"`
	Trashed bool     `json:"trashed,omitempty"`
}

// ImagesResponse lists image names or counts moved images.
type ImagesResponse struct {
	Images []string `json:"images,omitempty"`
	Moved  int      `json:"moved"`
}

// ExportRequest packages completed tasks. Empty IDs exports every completed
// task; empty Format uses the configured default.
type ExportRequest struct {
	BatchID string   `json:"batch_id"`
	IDs     []string `json:"ids,omitempty"`
	Format  string   `json:"format,omitempty"`
}

// ExportResponse lists one result per exported task.
type ExportResponse struct {
	Results []workflow.ExportResult `json:"results"`
	Error   string                  `json:"error,omitempty"`
}

// EventsRequest polls the event history of a batch.
type EventsRequest struct {
	BatchID string `json:"batch_id"`
	Since   uint64 `json:"since"`
	Limit   int    `json:"limit"`
	Wait    bool   `json:"wait"`
}

// EventsResponse returns events after the requested cursor.
type EventsResponse struct {
	Events []events.Event `json:"events"`
	Next   uint64         `json:"next"`
}

// LogStreamRequest polls the daemon log hub.
type LogStreamRequest struct {
	Since   uint64 `json:"since"`
	Limit   int    `json:"limit"`
	Follow  bool   `json:"follow"`
	Tail    bool   `json:"tail"`
	BatchID string `json:"batch_id,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
}

// LogStreamResponse wraps log events with the next cursor.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
