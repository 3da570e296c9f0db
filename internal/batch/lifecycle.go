package batch

import (
	"fmt"
	"time"

	"vidslide/internal/extract"
	"vidslide/internal/services"
)

// Start switches an idle batch to processing. params, when non-nil, replace
// the batch defaults for tasks dispatched from now on.
func (b *Batch) Start(params *extract.Params) error {
	var next extract.Params
	if params != nil {
		next = params.Normalize()
		if err := next.Validate(); err != nil {
			return err
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == BatchProcessing {
		return services.Wrap(services.ErrBusy, "batch", "start", "batch is already processing", nil)
	}
	if b.nextEligibleLocked() == nil {
		return transitionError("start", "no queued tasks to process")
	}
	if params != nil {
		b.params = next
	}
	b.status = BatchProcessing
	b.pauseAfterCurrent = false
	b.startedAt = b.now()
	b.touch()
	return nil
}

// PauseAfterCurrent lets running tasks finish but dispatches no new ones.
func (b *Batch) PauseAfterCurrent() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != BatchProcessing {
		return transitionError("pause", "batch is not processing")
	}
	b.pauseAfterCurrent = true
	b.touch()
	return nil
}

// Dispatching reports whether new tasks may be launched.
func (b *Batch) Dispatching() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status == BatchProcessing && !b.pauseAfterCurrent
}

// SetWorkerLimit changes max_workers while the batch is idle. The value is
// clamped to [1, ceiling] when ceiling is positive.
func (b *Batch) SetWorkerLimit(n, ceiling int) (int, error) {
	if n < 1 {
		return 0, services.Wrap(services.ErrValidation, "batch", "workers", fmt.Sprintf("worker limit %d must be at least 1", n), nil)
	}
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == BatchProcessing {
		return 0, services.Wrap(services.ErrBusy, "batch", "workers", "worker limit can only change while idle", nil)
	}
	b.maxWorkers = n
	b.touch()
	return n, nil
}

// CancelIntent selects how a task is stopped.
type CancelIntent string

const (
	IntentCancel CancelIntent = "cancel"
	IntentPause  CancelIntent = "pause"
	IntentSkip   CancelIntent = "skip"
)

// ParseCancelIntent validates an intent name.
func ParseCancelIntent(value string) (CancelIntent, error) {
	switch intent := CancelIntent(value); intent {
	case IntentCancel, IntentPause, IntentSkip:
		return intent, nil
	default:
		return "", services.Wrap(services.ErrValidation, "batch", "cancel", fmt.Sprintf("unknown intent %q", value), nil)
	}
}

// CancelResult reports the effect of CancelTask.
type CancelResult struct {
	// Status is the task status after the request. Running tasks stay
	// running until their worker observes the token.
	Status  Status
	Pending bool
}

// CancelTask stops a queued or running task. Queued tasks stop immediately
// and never reach a worker; running tasks are signalled through their token.
func (b *Batch) CancelTask(id string, intent CancelIntent) (CancelResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return CancelResult{}, err
	}
	switch t.state {
	case Queued():
		status := StatusCancelled
		switch intent {
		case IntentSkip:
			status = StatusSkipped
		case IntentPause:
			status = StatusPaused
		}
		state, _ := Stopped(status)
		t.state = state
		t.finishedAt = b.now()
		b.enterState(t)
		b.touch()
		return CancelResult{Status: status}, nil
	case Running():
		if intent == IntentSkip {
			return CancelResult{}, transitionError("cancel", "task %s already started; skip applies to queued tasks", id)
		}
		t.cancel.Request(intent == IntentPause)
		b.touch()
		return CancelResult{Status: StatusRunning, Pending: true}, nil
	default:
		return CancelResult{}, transitionError("cancel", "task %s is %s; only queued or running tasks can be stopped", id, t.state)
	}
}

// RetryResult reports how a task was re-queued.
type RetryResult struct {
	Resumed     bool
	ResumeFrame int64
	SavedCount  int
	// DiscardOutput is true when earlier artifacts must be deleted.
	DiscardOutput bool
}

// Retry re-queues a stopped task at the tail of the queue. Paused tasks keep
// their artifacts and resume from their last frame; other statuses restart
// from frame zero.
func (b *Batch) Retry(id string) (RetryResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return RetryResult{}, err
	}
	status := t.state.Status()
	if t.state.Zone() != ZoneQueued || !status.Retryable() {
		return RetryResult{}, transitionError("retry", "task %s is %s; retry needs error, skipped, cancelled or paused", id, t.state)
	}
	b.leaveState(t)
	t.resetRun()
	t.retryCount++
	result := RetryResult{}
	if status == StatusPaused && t.savedCount > 0 {
		t.resumeFrame = t.lastFrame
		result.Resumed = true
	} else {
		t.discardOutput()
		result.DiscardOutput = true
	}
	result.ResumeFrame = t.resumeFrame
	result.SavedCount = t.savedCount
	b.setState(t, Queued(), len(b.zones[ZoneQueued]))
	return result, nil
}

// Assignment is everything a worker needs to run one task.
type Assignment struct {
	BatchID     string
	TaskID      string
	Source      string
	OutputDir   string
	DisplayName string
	Params      extract.Params
	StartFrame  int64
	SavedOffset int
	Cancel      *CancelToken
}

// CacheDir is the artifact directory of the assignment.
func (a Assignment) CacheDir() string { return CacheDir(a.OutputDir) }

// NextEligible returns the id of the first queued task or "" when none.
func (b *Batch) NextEligible() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := b.nextEligibleLocked(); t != nil {
		return t.id
	}
	return ""
}

func (b *Batch) nextEligibleLocked() *Task {
	for _, id := range b.zones[ZoneQueued] {
		if t := b.tasks[id]; t.state == Queued() {
			return t
		}
	}
	return nil
}

// Claim marks a queued task running and hands it to a worker. It fails when
// the batch is not dispatching, the task is not queued or every worker slot
// is taken.
func (b *Batch) Claim(id string) (Assignment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != BatchProcessing || b.pauseAfterCurrent {
		return Assignment{}, transitionError("claim", "batch %s is not dispatching", b.id)
	}
	t, err := b.lookup(id)
	if err != nil {
		return Assignment{}, err
	}
	if t.state != Queued() {
		return Assignment{}, transitionError("claim", "task %s is %s", id, t.state)
	}
	if running := len(b.runningIDsLocked()); running >= b.maxWorkers {
		return Assignment{}, services.Wrap(services.ErrBusy, "batch", "claim",
			fmt.Sprintf("%d of %d workers busy", running, b.maxWorkers), nil)
	}
	params := b.params.Clone()
	t.params = &params
	t.resetRun()
	if t.resumeFrame == 0 {
		t.discardOutput()
	}
	t.runOffset = t.savedCount
	t.startedAt = b.now()
	t.finishedAt = time.Time{}
	t.state = Running()
	b.touch()
	return Assignment{
		BatchID:     b.id,
		TaskID:      t.id,
		Source:      t.sourcePath,
		OutputDir:   t.outputDir,
		DisplayName: t.displayName,
		Params:      params.Clone(),
		StartFrame:  t.resumeFrame,
		SavedOffset: t.savedCount,
		Cancel:      t.cancel,
	}, nil
}

// ApplyProgress records a progress report from the task's worker. Progress
// never moves backwards within a run, and the recorded last frame is the
// engine's resume-safe frame rather than its decode cursor. It returns false when the task is no
// longer running.
func (b *Batch) ApplyProgress(id string, p extract.Progress) (TaskRecord, int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[id]
	if !ok || t.state != Running() {
		return TaskRecord{}, 0, false
	}
	t.progress = max(t.progress, min(p.Percent, 99))
	t.savedCount = max(t.savedCount, p.Saved)
	t.elapsedSeconds = p.Elapsed.Seconds()
	t.etaSeconds = p.ETASeconds
	if p.TotalFrames > 0 {
		t.totalFrames = p.TotalFrames
	}
	if p.SafeFrame > t.lastFrame {
		t.lastFrame = p.SafeFrame
	}
	return t.record(), b.globalProgressLocked(), true
}

// Outcome is what a worker reports when it stops.
type Outcome struct {
	Result extract.Result
	Err    error
	// Message is the human readable failure text recorded on the task.
	Message string
	Kind    string
}

// Finish records the end of a run and moves the task to its terminal state.
// Successful runs move to the completed zone; every other outcome stays in
// the queued zone unless a trash request arrived during the run.
func (b *Batch) Finish(id string, outcome Outcome) (TaskRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return TaskRecord{}, err
	}
	if t.state != Running() {
		return TaskRecord{}, transitionError("finish", "task %s is %s", id, t.state)
	}
	res := outcome.Result
	t.savedCount = t.runOffset + res.Saved
	if res.LastFrame > 0 {
		t.lastFrame = res.LastFrame
	}
	if res.TotalFrames > 0 {
		t.totalFrames = res.TotalFrames
	}
	if res.Elapsed > 0 {
		t.elapsedSeconds = res.Elapsed.Seconds()
	}
	t.finishedAt = b.now()
	t.etaSeconds = -1

	var state State
	switch {
	case outcome.Err != nil:
		state, _ = Stopped(StatusError)
		t.errorMessage = outcome.Message
		if t.errorMessage == "" {
			t.errorMessage = outcome.Err.Error()
		}
		t.errorKind = outcome.Kind
	case res.Interrupted && t.cancel.PauseIntent():
		state, _ = Stopped(StatusPaused)
		t.resumeFrame = t.lastFrame
	case res.Interrupted:
		state, _ = Stopped(StatusCancelled)
	default:
		state = Completed()
		t.progress = 100
		t.resumeFrame = 0
	}
	if state.Zone() == ZoneCompleted {
		b.setState(t, state, -1)
	} else {
		t.state = state
		b.touch()
	}
	b.enterState(t)
	if reason := t.trashOnStop; reason != "" {
		b.trashLocked(t, reason)
	}
	return t.record(), nil
}

// Skip marks a queued task skipped without running it.
func (b *Batch) Skip(id, reason string) (TaskRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return TaskRecord{}, err
	}
	if t.state != Queued() {
		return TaskRecord{}, transitionError("skip", "task %s is %s", id, t.state)
	}
	state, _ := Stopped(StatusSkipped)
	t.state = state
	t.errorMessage = reason
	t.finishedAt = b.now()
	b.enterState(t)
	b.touch()
	return t.record(), nil
}

// Reject fails a queued task before it runs, typically because its source
// cannot be read. The task goes straight to the error status and is never
// marked running.
func (b *Batch) Reject(id, kind, message string) (TaskRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.lookup(id)
	if err != nil {
		return TaskRecord{}, err
	}
	if t.state != Queued() {
		return TaskRecord{}, transitionError("reject", "task %s is %s", id, t.state)
	}
	state, _ := Stopped(StatusError)
	t.state = state
	t.errorMessage = message
	t.errorKind = kind
	t.etaSeconds = -1
	t.finishedAt = b.now()
	b.enterState(t)
	b.touch()
	return t.record(), nil
}

// Settle flips a processing batch to idle once no task is running and no
// further task will be dispatched. It reports whether the status changed.
func (b *Batch) Settle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != BatchProcessing {
		return false
	}
	if len(b.runningIDsLocked()) > 0 {
		return false
	}
	if !b.pauseAfterCurrent && b.nextEligibleLocked() != nil {
		return false
	}
	b.status = BatchIdle
	b.pauseAfterCurrent = false
	b.touch()
	return true
}
