package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidslide/internal/batch"
	"vidslide/internal/config"
	"vidslide/internal/events"
	"vidslide/internal/extract"
	"vidslide/internal/logging"
	"vidslide/internal/metrics"
	"vidslide/internal/notifications"
	"vidslide/internal/preflight"
	"vidslide/internal/services"
	"vidslide/internal/store"
	"vidslide/internal/video"
)

// Media is the video capability the manager needs: decoding for extraction,
// probing and thumbnails for staging.
type Media interface {
	video.Decoder
	video.Prober
	video.Thumbnailer
}

// Manager coordinates batches, their dispatchers and workers.
type Manager struct {
	cfg      *config.Config
	store    store.Persister
	media    Media
	engine   *extract.Engine
	bus      *events.Bus
	logger   *slog.Logger
	notifier notifications.Service
	metrics  *metrics.Metrics

	diskFree func(string) (uint64, error)
	ceiling  int
	now      func() time.Time
	newID    func() string

	mu      sync.RWMutex
	batches map[string]*batchRun
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	lastErr error
}

// batchRun is the manager-side state of one loaded batch.
type batchRun struct {
	batch  *batch.Batch
	saveMu sync.Mutex
	wake   chan struct{}
}

func newBatchRun(b *batch.Batch) *batchRun {
	return &batchRun{batch: b, wake: make(chan struct{}, 1)}
}

// signal nudges the dispatcher without blocking.
func (r *batchRun) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the notification service.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithMetrics records worker and batch metrics.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithDiskProbe replaces the free space probe, which reports megabytes.
func WithDiskProbe(probe func(path string) (uint64, error)) ManagerOption {
	return func(m *Manager) {
		if probe != nil {
			m.diskFree = probe
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator replaces the batch id generator.
func WithIDGenerator(newID func() string) ManagerOption {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// WithWorkerCeiling caps the per-batch worker limit.
func WithWorkerCeiling(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.ceiling = n
		}
	}
}

// NewManager constructs a manager. Call Load before serving requests so
// persisted batches are available.
func NewManager(cfg *config.Config, st store.Persister, media Media, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		store:    st,
		media:    media,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifications.NewService(cfg),
		diskFree: preflight.FreeSpaceMB,
		ceiling:  max(preflight.WorkerCeiling(), preflight.ResolveMaxWorkers(cfg.Workers.MaxWorkers)),
		now:      time.Now,
		newID:    uuid.NewString,
		batches:  make(map[string]*batchRun),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.engine = extract.NewEngine(media, logger)
	m.bus = events.NewBus(events.Options{
		Buffer:   cfg.Events.SubscriberBuffer,
		MaxDrops: cfg.Events.MaxDrops,
		History:  cfg.Events.History,
		Logger:   logger,
		OnDrop:   func(string) { m.metrics.SubscriberDropped() },
	}, m.snapshotFor)
	return m
}

// Bus exposes the event bus for transports.
func (m *Manager) Bus() *events.Bus { return m.bus }

// Load restores persisted batches. Saved image counts are reconciled with
// the artifacts found on disk.
func (m *Manager) Load(ctx context.Context) error {
	snaps, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load batches: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, snap := range snaps {
		b, err := batch.FromSnapshot(snap, m.now)
		if err != nil {
			logging.WarnWithContext(m.logger, "skipping unreadable batch", "batch_load_failed",
				logging.BatchID(snap.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect or delete the batch document"),
			)
			continue
		}
		m.reconcileImages(b)
		m.batches[b.ID()] = newBatchRun(b)
	}
	m.logger.Info("batches loaded", logging.Int("count", len(m.batches)))
	return nil
}

func (m *Manager) reconcileImages(b *batch.Batch) {
	for _, zone := range batch.Zones {
		for _, id := range b.TaskIDs(zone) {
			rec, err := b.Task(id)
			if err != nil {
				continue
			}
			images, err := listImages(rec.CacheDir())
			if err != nil {
				continue
			}
			if len(images) != rec.SavedCount {
				m.logger.Info("reconciled saved image count",
					logging.BatchID(b.ID()),
					logging.TaskID(id),
					logging.Int("recorded", rec.SavedCount),
					logging.Int("on_disk", len(images)),
				)
				_ = b.SetSavedCount(id, len(images))
			}
		}
	}
}

// Close stops every dispatcher, waits for running workers to pause and
// persists the final state of each batch.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var errs []error
	for _, run := range m.runs() {
		if err := m.saveRun(context.WithoutCancel(ctx), run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) runs() []*batchRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*batchRun, 0, len(m.batches))
	for _, run := range m.batches {
		out = append(out, run)
	}
	return out
}

func (m *Manager) lookup(batchID string) (*batchRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, services.Wrap(services.ErrInterrupted, "workflow", "lookup", "manager is shutting down", nil)
	}
	run, ok := m.batches[batchID]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "lookup", fmt.Sprintf("batch %s not found", batchID), nil)
	}
	return run, nil
}

func (m *Manager) snapshotFor(batchID string) (any, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return nil, err
	}
	return run.batch.Snapshot(), nil
}

// CreateBatch starts an empty batch below the output directory. params nil
// uses the configured extraction defaults.
func (m *Manager) CreateBatch(ctx context.Context, params *extract.Params) (batch.Snapshot, error) {
	defaults := extract.ParamsFromConfig(m.cfg.Extraction)
	if params != nil {
		defaults = params.Normalize()
	}
	if err := defaults.Validate(); err != nil {
		return batch.Snapshot{}, err
	}
	id := m.newID()
	dir := filepath.Join(m.cfg.Paths.OutputDir, store.DirName(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return batch.Snapshot{}, services.Wrap(services.ErrConfiguration, "workflow", "create batch", dir, err)
	}
	b := batch.New(batch.Options{
		ID:         id,
		Dir:        dir,
		Params:     defaults,
		MaxWorkers: min(preflight.ResolveMaxWorkers(m.cfg.Workers.MaxWorkers), m.ceiling),
		Now:        m.now,
	})
	run := newBatchRun(b)
	if err := m.saveRun(ctx, run); err != nil {
		return batch.Snapshot{}, err
	}
	m.mu.Lock()
	m.batches[id] = run
	m.mu.Unlock()

	m.logger.Info("batch created",
		logging.BatchID(id),
		logging.String("dir", dir),
		logging.Int("max_workers", b.MaxWorkers()),
	)
	return b.Snapshot(), nil
}

// ListBatches returns every loaded batch, oldest first.
func (m *Manager) ListBatches() []batch.Summary {
	runs := m.runs()
	out := make([]batch.Summary, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.batch.Summary())
	}
	slices.SortFunc(out, func(a, b batch.Summary) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	return out
}

// BatchStatus returns the full snapshot of a batch.
func (m *Manager) BatchStatus(batchID string) (batch.Snapshot, error) {
	run, err := m.lookup(batchID)
	if err != nil {
		return batch.Snapshot{}, err
	}
	return run.batch.Snapshot(), nil
}

// DeleteBatch forgets an idle batch. removeFiles also deletes its directory.
func (m *Manager) DeleteBatch(ctx context.Context, batchID string, removeFiles bool) error {
	run, err := m.lookup(batchID)
	if err != nil {
		return err
	}
	if run.batch.Status() != batch.BatchIdle {
		return services.Wrap(services.ErrBusy, "workflow", "delete batch", "batch is processing; pause it first", nil)
	}
	if err := m.store.Delete(ctx, batchID); err != nil && !errors.Is(err, services.ErrNotFound) {
		return err
	}
	m.mu.Lock()
	delete(m.batches, batchID)
	m.mu.Unlock()
	m.bus.CloseBatch(batchID)

	if removeFiles {
		if err := os.RemoveAll(run.batch.Dir()); err != nil {
			return services.Wrap(services.ErrTransient, "workflow", "delete batch", run.batch.Dir(), err)
		}
	}
	m.logger.Info("batch deleted",
		logging.BatchID(batchID),
		logging.Bool("files_removed", removeFiles),
	)
	return nil
}

// Subscribe attaches to the event stream of a batch.
func (m *Manager) Subscribe(batchID string) (*events.Subscription, error) {
	if _, err := m.lookup(batchID); err != nil {
		return nil, err
	}
	return m.bus.Subscribe(batchID)
}
