package batch

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"vidslide/internal/extract"
	"vidslide/internal/services"
)

// BatchStatus is the orchestration status of a batch.
type BatchStatus string

const (
	BatchIdle       BatchStatus = "idle"
	BatchProcessing BatchStatus = "processing"
)

// SnapshotVersion is bumped when the persisted document changes shape.
const SnapshotVersion = 1

// Batch is one orchestration session: an arena of tasks plus zone ordering.
type Batch struct {
	mu sync.Mutex

	id         string
	dir        string
	status     BatchStatus
	maxWorkers int
	params     extract.Params
	createdAt  time.Time
	startedAt  time.Time
	updatedAt  time.Time

	completedCount int
	failedCount    int
	skippedCount   int
	totalImages    int

	pauseAfterCurrent bool

	tasks map[string]*Task
	zones map[Zone][]string

	now   func() time.Time
	newID func() string
}

// Options configure a new batch.
type Options struct {
	ID         string
	Dir        string
	Params     extract.Params
	MaxWorkers int
	Now        func() time.Time
	NewID      func() string
}

// New creates an empty idle batch.
func New(opts Options) *Batch {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = newTaskID
	}
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	now := opts.Now()
	return &Batch{
		id:         opts.ID,
		dir:        opts.Dir,
		status:     BatchIdle,
		maxWorkers: opts.MaxWorkers,
		params:     opts.Params.Normalize(),
		createdAt:  now,
		updatedAt:  now,
		tasks:      make(map[string]*Task),
		zones:      emptyZones(),
		now:        opts.Now,
		newID:      opts.NewID,
	}
}

func emptyZones() map[Zone][]string {
	zones := make(map[Zone][]string, len(Zones))
	for _, z := range Zones {
		zones[z] = nil
	}
	return zones
}

// ID returns the batch id.
func (b *Batch) ID() string { return b.id }

// Dir returns the directory holding task output folders.
func (b *Batch) Dir() string { return b.dir }

// Status returns the batch status.
func (b *Batch) Status() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// MaxWorkers returns the current worker limit.
func (b *Batch) MaxWorkers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxWorkers
}

// Params returns a copy of the default extraction parameters.
func (b *Batch) Params() extract.Params {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.params.Clone()
}

// Task returns a copy of the task record.
func (b *Batch) Task(id string) (TaskRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return TaskRecord{}, err
	}
	return t.record(), nil
}

// TaskIDs returns the ordered ids of a zone.
func (b *Batch) TaskIDs(zone Zone) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.zones[zone])
}

// RunningIDs returns the ids of running tasks in queue order.
func (b *Batch) RunningIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runningIDsLocked()
}

// RunningCount returns the number of running tasks.
func (b *Batch) RunningCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.runningIDsLocked())
}

func (b *Batch) runningIDsLocked() []string {
	var ids []string
	for _, id := range b.zones[ZoneQueued] {
		if b.tasks[id].state.Status() == StatusRunning {
			ids = append(ids, id)
		}
	}
	return ids
}

// GlobalProgress is the mean task progress of the active zones where
// terminal tasks count as complete.
func (b *Batch) GlobalProgress() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.globalProgressLocked()
}

func (b *Batch) globalProgressLocked() int {
	var total, n int
	for _, zone := range []Zone{ZoneQueued, ZoneCompleted} {
		for _, id := range b.zones[zone] {
			t := b.tasks[id]
			n++
			if t.state.Status().Terminal() {
				total += 100
				continue
			}
			total += t.progress
		}
	}
	if n == 0 {
		return 0
	}
	return total / n
}

func (b *Batch) lookup(id string) (*Task, error) {
	t, ok := b.tasks[id]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "batch", "task", fmt.Sprintf("task %s not in batch %s", id, b.id), nil)
	}
	return t, nil
}

// setState moves t to state, keeping zone membership in step. position < 0
// appends to the destination zone.
func (b *Batch) setState(t *Task, state State, position int) {
	from := t.state.Zone()
	if from != state.Zone() || position >= 0 {
		b.zones[from] = slices.DeleteFunc(b.zones[from], func(id string) bool { return id == t.id })
		b.insert(state.Zone(), t.id, position)
	}
	t.state = state
	b.touch()
}

func (b *Batch) insert(zone Zone, id string, position int) {
	ids := b.zones[zone]
	if position < 0 || position > len(ids) {
		position = len(ids)
	}
	b.zones[zone] = slices.Insert(ids, position, id)
}

func (b *Batch) touch() {
	b.updatedAt = b.now()
}

// Summary is the compact listing entry of a batch.
type Summary struct {
	ID             string      `json:"id"`
	Status         BatchStatus `json:"status"`
	TaskCount      int         `json:"task_count"`
	CompletedCount int         `json:"completed_count"`
	FailedCount    int         `json:"failed_count"`
	TotalImages    int         `json:"total_images"`
	GlobalProgress int         `json:"global_progress"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Summary returns the listing entry for the batch.
func (b *Batch) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Summary{
		ID:             b.id,
		Status:         b.status,
		TaskCount:      len(b.tasks),
		CompletedCount: b.completedCount,
		FailedCount:    b.failedCount,
		TotalImages:    b.totalImages,
		GlobalProgress: b.globalProgressLocked(),
		CreatedAt:      b.createdAt,
		UpdatedAt:      b.updatedAt,
	}
}

// ZoneRecords holds the task records of each zone in order.
type ZoneRecords struct {
	Staged    []TaskRecord `json:"staged"`
	Queued    []TaskRecord `json:"queued"`
	Completed []TaskRecord `json:"completed"`
	Trashed   []TaskRecord `json:"trashed"`
}

func (z *ZoneRecords) slot(zone Zone) *[]TaskRecord {
	switch zone {
	case ZoneStaged:
		return &z.Staged
	case ZoneQueued:
		return &z.Queued
	case ZoneCompleted:
		return &z.Completed
	default:
		return &z.Trashed
	}
}

// Snapshot is the full state document of a batch. It is both the persisted
// shape and the payload of status queries and init events.
type Snapshot struct {
	Version           int            `json:"version"`
	ID                string         `json:"id"`
	Dir               string         `json:"dir"`
	Status            BatchStatus    `json:"status"`
	MaxWorkers        int            `json:"max_workers"`
	Params            extract.Params `json:"params"`
	CreatedAt         time.Time      `json:"created_at"`
	StartedAt         time.Time      `json:"started_at,omitzero"`
	UpdatedAt         time.Time      `json:"updated_at"`
	CompletedCount    int            `json:"completed_count"`
	FailedCount       int            `json:"failed_count"`
	SkippedCount      int            `json:"skipped_count"`
	TotalImages       int            `json:"total_images"`
	PauseAfterCurrent bool           `json:"pause_after_current"`
	GlobalProgress    int            `json:"global_progress"`
	RunningIDs        []string       `json:"running_ids"`
	Zones             ZoneRecords    `json:"zones"`
}

// Snapshot captures the full batch state.
func (b *Batch) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := Snapshot{
		Version:           SnapshotVersion,
		ID:                b.id,
		Dir:               b.dir,
		Status:            b.status,
		MaxWorkers:        b.maxWorkers,
		Params:            b.params.Clone(),
		CreatedAt:         b.createdAt,
		StartedAt:         b.startedAt,
		UpdatedAt:         b.updatedAt,
		CompletedCount:    b.completedCount,
		FailedCount:       b.failedCount,
		SkippedCount:      b.skippedCount,
		TotalImages:       b.totalImages,
		PauseAfterCurrent: b.pauseAfterCurrent,
		GlobalProgress:    b.globalProgressLocked(),
		RunningIDs:        b.runningIDsLocked(),
	}
	for _, zone := range Zones {
		slot := snap.Zones.slot(zone)
		*slot = make([]TaskRecord, 0, len(b.zones[zone]))
		for _, id := range b.zones[zone] {
			*slot = append(*slot, b.tasks[id].record())
		}
	}
	return snap
}

// FromSnapshot rebuilds a batch after a restart. Running tasks become paused
// and resume from their last recorded frame, every cancellation flag is
// cleared and the batch is idle.
func FromSnapshot(snap Snapshot, now func() time.Time) (*Batch, error) {
	if snap.ID == "" {
		return nil, services.Wrap(services.ErrValidation, "batch", "load", "snapshot has no id", nil)
	}
	b := New(Options{
		ID:         snap.ID,
		Dir:        snap.Dir,
		Params:     snap.Params,
		MaxWorkers: snap.MaxWorkers,
		Now:        now,
	})
	b.createdAt = snap.CreatedAt
	b.startedAt = snap.StartedAt
	b.updatedAt = snap.UpdatedAt
	b.completedCount = snap.CompletedCount
	b.failedCount = snap.FailedCount
	b.skippedCount = snap.SkippedCount
	b.totalImages = snap.TotalImages

	for _, zone := range Zones {
		for _, rec := range *snap.Zones.slot(zone) {
			if rec.Zone == "" {
				rec.Zone = zone
			}
			if rec.Zone != zone {
				return nil, services.Wrap(services.ErrValidation, "batch", "load",
					fmt.Sprintf("task %s recorded in zone %s but listed under %s", rec.ID, rec.Zone, zone), nil)
			}
			if rec.Status == StatusRunning {
				rec.Status = StatusPaused
				rec.ResumeFrame = rec.LastFrame
				rec.ETASeconds = -1
			}
			if _, dup := b.tasks[rec.ID]; dup || rec.ID == "" {
				return nil, services.Wrap(services.ErrValidation, "batch", "load",
					fmt.Sprintf("duplicate or empty task id %q", rec.ID), nil)
			}
			t, err := taskFromRecord(rec)
			if err != nil {
				return nil, err
			}
			b.tasks[t.id] = t
			b.zones[zone] = append(b.zones[zone], t.id)
		}
	}
	return b, nil
}
