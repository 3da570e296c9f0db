package events

import "time"

// Type names an event kind.
type Type string

const (
	TypeInit              Type = "init"
	TypeZoneChange        Type = "zone_change"
	TypeTaskStatus        Type = "task_status"
	TypeTaskProgress      Type = "task_progress"
	TypeBatchStatus       Type = "batch_status"
	TypeDiskSpaceWarning  Type = "disk_space_warning"
	TypePackagingProgress Type = "packaging_progress"
	TypePackagingDone     Type = "packaging_done"
	TypePackagingError    Type = "packaging_error"
	TypeClose             Type = "close"
)

// Event is one notification about a batch.
type Event struct {
	Seq     uint64    `json:"seq"`
	BatchID string    `json:"batch_id"`
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}

// ZoneChange lists the ordered ids of every zone after a mutation.
type ZoneChange struct {
	Zones map[string][]string `json:"zones"`
}

// TaskStatus reports a task status transition.
type TaskStatus struct {
	TaskID         string `json:"task_id"`
	Zone           string `json:"zone"`
	Status         string `json:"status"`
	SavedCount     int    `json:"saved_count"`
	RetryCount     int    `json:"retry_count"`
	Message        string `json:"message,omitempty"`
	GlobalProgress int    `json:"global_progress"`
}

// TaskProgress reports extraction progress of a running task.
type TaskProgress struct {
	TaskID         string  `json:"task_id"`
	Progress       int     `json:"progress"`
	SavedCount     int     `json:"saved_count"`
	Frame          int64   `json:"frame"`
	TotalFrames    int64   `json:"total_frames"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ETASeconds     float64 `json:"eta_seconds"`
	GlobalProgress int     `json:"global_progress"`
}

// BatchStatus reports a batch status change or aggregate update.
type BatchStatus struct {
	Status         string   `json:"status"`
	GlobalProgress int      `json:"global_progress"`
	CompletedCount int      `json:"completed_count"`
	FailedCount    int      `json:"failed_count"`
	SkippedCount   int      `json:"skipped_count"`
	TotalImages    int      `json:"total_images"`
	RunningIDs     []string `json:"running_ids"`
	MaxWorkers     int      `json:"max_workers"`
}

// DiskSpaceWarning reports low free space in the output directory.
type DiskSpaceWarning struct {
	TaskID    string `json:"task_id,omitempty"`
	Path      string `json:"path"`
	FreeMB    uint64 `json:"free_mb"`
	MinimumMB uint64 `json:"minimum_mb"`
}

// Packaging reports export progress.
type Packaging struct {
	TaskID  string `json:"task_id,omitempty"`
	Format  string `json:"format"`
	Percent int    `json:"percent"`
	File    string `json:"file,omitempty"`
	Message string `json:"message,omitempty"`
}
