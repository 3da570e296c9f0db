package ipc

import "vidslide/internal/api"

// Empty is the request for methods without arguments.
type Empty struct{}

// Ack is the response for methods that only report success.
type Ack struct {
	OK bool `json:"ok"`
}

// StopResponse reports whether a shutdown was scheduled.
type StopResponse struct {
	Stopping bool   `json:"stopping"`
	Message  string `json:"message"`
}

// Request and response payloads are shared with the HTTP transport.
type (
	CreateBatchRequest   = api.CreateBatchRequest
	BatchRequest         = api.BatchRequest
	BatchResponse        = api.BatchResponse
	BatchListResponse    = api.BatchListResponse
	DeleteBatchRequest   = api.DeleteBatchRequest
	StageRequest         = api.StageRequest
	StageResponse        = api.StageResponse
	MoveRequest          = api.MoveRequest
	ReorderRequest       = api.ReorderRequest
	TaskRequest          = api.TaskRequest
	RenameRequest        = api.RenameRequest
	TrashRequest         = api.TrashRequest
	TrashResponse        = api.TrashResponse
	RestoreRequest       = api.RestoreRequest
	StartRequest         = api.StartRequest
	WorkersRequest       = api.WorkersRequest
	WorkersResponse      = api.WorkersResponse
	CancelRequest        = api.CancelRequest
	CancelResponse       = api.CancelResponse
	RetryResponse        = api.RetryResponse
	ImagesRequest        = api.ImagesRequest
	ImagesResponse       = api.ImagesResponse
	ExportRequest        = api.ExportRequest
	ExportResponse       = api.ExportResponse
	EventsRequest        = api.EventsRequest
	EventsResponse       = api.EventsResponse
	LogTailRequest       = api.LogStreamRequest
	LogTailResponse      = api.LogStreamResponse
	StatusResponse       = api.DaemonStatus
	NotificationResponse = api.NotificationResponse
)
