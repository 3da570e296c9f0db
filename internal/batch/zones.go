package batch

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"vidslide/internal/services"
	"vidslide/internal/textutil"
)

func newTaskID() string {
	return uuid.NewString()
}

func transitionError(op, format string, args ...any) error {
	return services.Wrap(services.ErrInvalidTransition, "batch", op, fmt.Sprintf(format, args...), nil)
}

// StageEntry names one video to add.
type StageEntry struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

// Stage adds videos to the staged zone and returns the new task ids in input
// order. Each task gets its own output directory below the batch directory.
func (b *Batch) Stage(entries []StageEntry) ([]string, error) {
	for _, entry := range entries {
		if strings.TrimSpace(entry.Path) == "" {
			return nil, services.Wrap(services.ErrValidation, "batch", "stage", "empty video path", nil)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	inUse := make(map[string]bool, len(b.tasks))
	for _, t := range b.tasks {
		inUse[filepath.Base(t.outputDir)] = true
	}
	now := b.now()
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := textutil.NormalizeName(entry.Name)
		if name == "" {
			name = textutil.DisplayNameFromPath(entry.Path)
		}
		dirName := textutil.UniqueDirName(textutil.SanitizeDirName(name), func(candidate string) bool {
			return inUse[candidate]
		})
		inUse[dirName] = true
		t := newTask(b.newID(), entry.Path, name, filepath.Join(b.dir, dirName), now)
		b.tasks[t.id] = t
		b.zones[ZoneStaged] = append(b.zones[ZoneStaged], t.id)
		ids = append(ids, t.id)
	}
	b.touch()
	return ids, nil
}

// SetMedia records probe results captured when a video is staged.
func (b *Batch) SetMedia(id string, duration float64, totalFrames int64, thumbnail string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return err
	}
	t.duration = duration
	if totalFrames > 0 {
		t.totalFrames = totalFrames
	}
	t.thumbnail = thumbnail
	b.touch()
	return nil
}

// Move transfers tasks from one zone to another. position inserts the tasks
// at that index of the destination, negative appends. Moving within a zone
// repositions the tasks. Moves into the trash follow the Trash rules, so a
// running task is trashed once its worker stops.
func (b *Batch) Move(ids []string, from, to Zone, position int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if to == ZoneTrashed {
		return b.moveToTrashLocked(ids, from)
	}

	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, err := b.lookup(id)
		if err != nil {
			return err
		}
		if t.state.Zone() != from {
			return transitionError("move", "task %s is in zone %s, not %s", id, t.state.Zone(), from)
		}
		if t.state.Status() == StatusRunning {
			return transitionError("move", "task %s is running; pause or cancel it first", id)
		}
		if _, err := moveTarget(t, to); err != nil {
			return err
		}
		tasks = append(tasks, t)
	}

	for i, t := range tasks {
		state, _ := moveTarget(t, to)
		if state.Zone() != t.state.Zone() {
			b.leaveState(t)
		}
		pos := position
		if pos >= 0 {
			pos += i
		}
		switch state.Zone() {
		case ZoneStaged:
			t.resetRun()
			t.discardOutput()
		case ZoneQueued:
			if from != ZoneQueued {
				t.resetRun()
				t.discardOutput()
			}
		}
		b.setState(t, state, pos)
	}
	return nil
}

func (b *Batch) moveToTrashLocked(ids []string, from Zone) error {
	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		t, err := b.lookup(id)
		if err != nil {
			return err
		}
		if zone := t.state.Zone(); zone != from || zone == ZoneTrashed {
			return transitionError("move", "task %s is in zone %s, not %s", id, zone, from)
		}
		tasks = append(tasks, t)
	}
	for _, t := range tasks {
		if _, err := b.trashTaskLocked(t, "moved to trash"); err != nil {
			return err
		}
	}
	return nil
}

// moveTarget returns the state a task takes when moved to zone.
func moveTarget(t *Task, to Zone) (State, error) {
	from := t.state.Zone()
	switch {
	case from == to:
		return t.state, nil
	case from == ZoneTrashed:
		return State{}, transitionError("move", "task %s is trashed; restore it instead", t.id)
	case to == ZoneStaged:
		return Staged(), nil
	case to == ZoneQueued:
		return Queued(), nil
	default:
		return State{}, transitionError("move", "tasks reach zone %s only by finishing a run", to)
	}
}

// leaveState reverses the counters contributed by the task's current state.
func (b *Batch) leaveState(t *Task) {
	if t.state.Zone() == ZoneTrashed {
		return
	}
	switch t.state.Status() {
	case StatusDone:
		b.completedCount = max(0, b.completedCount-1)
		b.totalImages = max(0, b.totalImages-t.savedCount)
	case StatusError:
		b.failedCount = max(0, b.failedCount-1)
	case StatusSkipped:
		b.skippedCount = max(0, b.skippedCount-1)
	}
}

// enterState adds the counters contributed by a task entering its state.
func (b *Batch) enterState(t *Task) {
	if t.state.Zone() == ZoneTrashed {
		return
	}
	switch t.state.Status() {
	case StatusDone:
		b.completedCount++
		b.totalImages += t.savedCount
	case StatusError:
		b.failedCount++
	case StatusSkipped:
		b.skippedCount++
	}
}

// Reorder sets the order of a zone. Listed ids come first in the given
// order, unlisted members keep their relative order after them.
func (b *Batch) Reorder(zone Zone, ordered []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	members := b.zones[zone]
	seen := make(map[string]bool, len(ordered))
	next := make([]string, 0, len(members))
	for _, id := range ordered {
		if !slices.Contains(members, id) {
			return services.Wrap(services.ErrValidation, "batch", "reorder", fmt.Sprintf("task %s is not in zone %s", id, zone), nil)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		next = append(next, id)
	}
	for _, id := range members {
		if !seen[id] {
			next = append(next, id)
		}
	}
	b.zones[zone] = next
	b.touch()
	return nil
}

// Prioritize moves a queued task to just after the running tasks so it is the
// next one dispatched.
func (b *Batch) Prioritize(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return err
	}
	if t.state != Queued() {
		return transitionError("prioritize", "task %s is %s; only queued tasks can be prioritized", id, t.state)
	}
	ids := slices.DeleteFunc(slices.Clone(b.zones[ZoneQueued]), func(v string) bool { return v == id })
	position := 0
	for i, other := range ids {
		if b.tasks[other].state.Status() == StatusRunning {
			position = i + 1
		}
	}
	for i, other := range ids {
		if b.tasks[other].state.Status() == StatusQueued {
			position = min(position, i)
			break
		}
	}
	b.zones[ZoneQueued] = slices.Insert(ids, position, id)
	b.touch()
	return nil
}

// Rename changes the display name of a staged or completed task.
func (b *Batch) Rename(id, name string) error {
	name = textutil.NormalizeName(name)
	if name == "" {
		return services.Wrap(services.ErrValidation, "batch", "rename", "name must not be empty", nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return err
	}
	if zone := t.state.Zone(); zone != ZoneStaged && zone != ZoneCompleted {
		return transitionError("rename", "task %s is in zone %s; rename staged or completed tasks", id, zone)
	}
	t.displayName = name
	b.touch()
	return nil
}

// TrashResult reports how a trash request was applied.
type TrashResult struct {
	// Deferred is true when the task was running. It was asked to cancel and
	// moves to the trash once its worker stops.
	Deferred bool
}

// Trash moves a task into the trashed zone.
func (b *Batch) Trash(id, reason string) (TrashResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return TrashResult{}, err
	}
	return b.trashTaskLocked(t, reason)
}

func (b *Batch) trashTaskLocked(t *Task, reason string) (TrashResult, error) {
	if t.state.Status() == StatusRunning {
		if reason == "" {
			reason = "cancelled"
		}
		t.trashOnStop = reason
		t.cancel.Request(false)
		b.touch()
		return TrashResult{Deferred: true}, nil
	}
	if t.state.Zone() == ZoneTrashed {
		return TrashResult{}, transitionError("trash", "task %s is already trashed", t.id)
	}
	b.trashLocked(t, reason)
	return TrashResult{}, nil
}

func (b *Batch) trashLocked(t *Task, reason string) {
	// running tasks never reach here, so the prior status is always valid
	state, _ := Trashed(t.state.Status())
	b.leaveState(t)
	t.reason = strings.TrimSpace(reason)
	t.trashedAt = b.now()
	t.trashOnStop = ""
	b.setState(t, state, -1)
}

// RestoreAction selects where a trashed task goes.
type RestoreAction string

const (
	RestoreToStaged        RestoreAction = "to_staged"
	RestoreResumeToQueue   RestoreAction = "resume_to_queue"
	RestoreToCompleted     RestoreAction = "to_completed"
	RestorePermanentDelete RestoreAction = "permanent_delete"
)

// ParseRestoreAction validates a restore action name.
func ParseRestoreAction(value string) (RestoreAction, error) {
	switch action := RestoreAction(value); action {
	case RestoreToStaged, RestoreResumeToQueue, RestoreToCompleted, RestorePermanentDelete:
		return action, nil
	default:
		return "", services.Wrap(services.ErrValidation, "batch", "restore", fmt.Sprintf("unknown restore action %q", value), nil)
	}
}

// Restore takes a task out of the trash. The returned record is the task
// before the action, which callers use to clean up files of deleted tasks.
func (b *Batch) Restore(id string, action RestoreAction) (TaskRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return TaskRecord{}, err
	}
	if t.state.Zone() != ZoneTrashed {
		return TaskRecord{}, transitionError("restore", "task %s is not trashed", id)
	}
	before := t.record()
	prior := t.state.Status()

	switch action {
	case RestoreToStaged:
		t.resetRun()
		t.discardOutput()
		t.reason = ""
		b.setState(t, Staged(), -1)
	case RestoreResumeToQueue:
		if !hasPartialOutput(t, prior) {
			return TaskRecord{}, transitionError("restore", "task %s has no partial output to resume", id)
		}
		t.resetRun()
		t.resumeFrame = t.lastFrame
		t.reason = ""
		b.setState(t, Queued(), -1)
	case RestoreToCompleted:
		if prior != StatusDone || t.savedCount == 0 {
			return TaskRecord{}, transitionError("restore", "task %s has no completed output", id)
		}
		t.reason = ""
		b.setState(t, Completed(), -1)
		b.enterState(t)
	case RestorePermanentDelete:
		b.zones[ZoneTrashed] = slices.DeleteFunc(b.zones[ZoneTrashed], func(v string) bool { return v == id })
		delete(b.tasks, id)
		b.touch()
	default:
		return TaskRecord{}, services.Wrap(services.ErrValidation, "batch", "restore", fmt.Sprintf("unknown restore action %q", action), nil)
	}
	return before, nil
}

func hasPartialOutput(t *Task, prior Status) bool {
	switch prior {
	case StatusPaused, StatusCancelled, StatusError:
		return t.savedCount > 0 && t.lastFrame > 0
	default:
		return false
	}
}

// PermanentlyDelete destroys a trashed task.
func (b *Batch) PermanentlyDelete(id string) (TaskRecord, error) {
	return b.Restore(id, RestorePermanentDelete)
}

// SetSavedCount replaces the saved image count of a task that is not
// running, keeping the batch image total in step. It is used after images
// are trashed or restored and when reconciling with the files on disk.
func (b *Batch) SetSavedCount(id string, count int) error {
	if count < 0 {
		return services.Wrap(services.ErrValidation, "batch", "images", "saved count must not be negative", nil)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return err
	}
	if t.state.Status() == StatusRunning {
		return transitionError("images", "task %s is running", id)
	}
	if t.savedCount == count {
		return nil
	}
	b.leaveState(t)
	t.savedCount = count
	b.enterState(t)
	b.touch()
	return nil
}
