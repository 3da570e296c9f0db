package batch

import (
	"path/filepath"
	"time"

	"vidslide/internal/extract"
)

// Task directory layout below the task output directory.
const (
	CacheDirName   = "cache"
	PackageDirName = "packages"
	TrashDirName   = ".trash"
	ThumbnailName  = "thumbnail.jpg"
)

// Task is one video's unit of work. Tasks are owned by their Batch and only
// mutated under its lock.
type Task struct {
	id          string
	sourcePath  string
	displayName string
	outputDir   string
	state       State

	progress       int
	savedCount     int
	elapsedSeconds float64
	etaSeconds     float64
	errorMessage   string
	errorKind      string
	retryCount     int
	totalFrames    int64
	lastFrame      int64
	resumeFrame    int64
	duration       float64
	thumbnail      string
	reason         string
	params         *extract.Params

	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	trashedAt  time.Time

	cancel      *CancelToken
	trashOnStop string
	runOffset   int
}

func newTask(id, source, name, outputDir string, now time.Time) *Task {
	return &Task{
		id:          id,
		sourcePath:  source,
		displayName: name,
		outputDir:   outputDir,
		state:       Staged(),
		etaSeconds:  -1,
		createdAt:   now,
		cancel:      &CancelToken{},
	}
}

// CacheDir is where slide artifacts are written.
func CacheDir(outputDir string) string {
	return filepath.Join(outputDir, CacheDirName)
}

// PackageDir is where exported packages are written.
func PackageDir(outputDir string) string {
	return filepath.Join(outputDir, PackageDirName)
}

// ImageTrashDir holds slides the user removed from a task.
func ImageTrashDir(outputDir string) string {
	return filepath.Join(CacheDir(outputDir), TrashDirName)
}

// resetRun clears per-run counters before a fresh or resumed run.
func (t *Task) resetRun() {
	t.progress = 0
	t.elapsedSeconds = 0
	t.etaSeconds = -1
	t.errorMessage = ""
	t.errorKind = ""
	t.cancel = &CancelToken{}
}

// discardOutput forgets saved artifacts so the next run starts at frame zero.
func (t *Task) discardOutput() {
	t.savedCount = 0
	t.lastFrame = 0
	t.resumeFrame = 0
}

// TaskRecord is the serialisable view of a task.
type TaskRecord struct {
	ID              string          `json:"id"`
	SourcePath      string          `json:"source_path"`
	DisplayName     string          `json:"display_name"`
	OutputDir       string          `json:"output_dir"`
	Zone            Zone            `json:"zone"`
	Status          Status          `json:"status"`
	Progress        int             `json:"progress"`
	SavedCount      int             `json:"saved_count"`
	ElapsedSeconds  float64         `json:"elapsed_seconds"`
	ETASeconds      float64         `json:"eta_seconds"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ErrorKind       string          `json:"error_kind,omitempty"`
	RetryCount      int             `json:"retry_count"`
	CancelFlag      bool            `json:"cancel_flag"`
	PauseIntent     bool            `json:"pause_intent"`
	Params          *extract.Params `json:"params_snapshot,omitempty"`
	TotalFrames     int64           `json:"total_frames"`
	LastFrame       int64           `json:"last_frame"`
	ResumeFrame     int64           `json:"resume_frame"`
	DurationSeconds float64         `json:"duration_seconds"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       time.Time       `json:"started_at,omitzero"`
	FinishedAt      time.Time       `json:"finished_at,omitzero"`
	TrashedAt       time.Time       `json:"trashed_at,omitzero"`
}

// CacheDir returns the artifact directory of the record.
func (r TaskRecord) CacheDir() string { return CacheDir(r.OutputDir) }

// PackageDir returns the package directory of the record.
func (r TaskRecord) PackageDir() string { return PackageDir(r.OutputDir) }

func (t *Task) record() TaskRecord {
	rec := TaskRecord{
		ID:              t.id,
		SourcePath:      t.sourcePath,
		DisplayName:     t.displayName,
		OutputDir:       t.outputDir,
		Zone:            t.state.Zone(),
		Status:          t.state.Status(),
		Progress:        t.progress,
		SavedCount:      t.savedCount,
		ElapsedSeconds:  t.elapsedSeconds,
		ETASeconds:      t.etaSeconds,
		ErrorMessage:    t.errorMessage,
		ErrorKind:       t.errorKind,
		RetryCount:      t.retryCount,
		TotalFrames:     t.totalFrames,
		LastFrame:       t.lastFrame,
		ResumeFrame:     t.resumeFrame,
		DurationSeconds: t.duration,
		Thumbnail:       t.thumbnail,
		Reason:          t.reason,
		CreatedAt:       t.createdAt,
		StartedAt:       t.startedAt,
		FinishedAt:      t.finishedAt,
		TrashedAt:       t.trashedAt,
	}
	if t.cancel != nil {
		rec.CancelFlag = t.cancel.Cancelled()
		rec.PauseIntent = t.cancel.PauseIntent()
	}
	if t.params != nil {
		params := t.params.Clone()
		rec.Params = &params
	}
	return rec
}

// taskFromRecord rebuilds a task. Cancellation flags are never restored.
func taskFromRecord(rec TaskRecord) (*Task, error) {
	state, err := NewState(rec.Zone, rec.Status)
	if err != nil {
		return nil, err
	}
	t := &Task{
		id:             rec.ID,
		sourcePath:     rec.SourcePath,
		displayName:    rec.DisplayName,
		outputDir:      rec.OutputDir,
		state:          state,
		progress:       rec.Progress,
		savedCount:     rec.SavedCount,
		elapsedSeconds: rec.ElapsedSeconds,
		etaSeconds:     rec.ETASeconds,
		errorMessage:   rec.ErrorMessage,
		errorKind:      rec.ErrorKind,
		retryCount:     rec.RetryCount,
		totalFrames:    rec.TotalFrames,
		lastFrame:      rec.LastFrame,
		resumeFrame:    rec.ResumeFrame,
		duration:       rec.DurationSeconds,
		thumbnail:      rec.Thumbnail,
		reason:         rec.Reason,
		createdAt:      rec.CreatedAt,
		startedAt:      rec.StartedAt,
		finishedAt:     rec.FinishedAt,
		trashedAt:      rec.TrashedAt,
		cancel:         &CancelToken{},
	}
	if rec.Params != nil {
		params := rec.Params.Clone()
		t.params = &params
	}
	return t, nil
}
