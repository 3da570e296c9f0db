package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vidslide/internal/api"
	"vidslide/internal/config"
	"vidslide/internal/deps"
	"vidslide/internal/extract"
	"vidslide/internal/logging"
	"vidslide/internal/metrics"
	"vidslide/internal/notifications"
	"vidslide/internal/store"
	"vidslide/internal/workflow"
)

const shutdownTimeout = 30 * time.Second

// Daemon coordinates the batch manager and its transports and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Persister
	workflow *workflow.Manager
	service  *api.BatchService
	notifier notifications.Service
	metrics  *metrics.Metrics
	logHub   *logging.StreamHub
	logPath  string

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Health       []workflow.ComponentHealth
	Dependencies []deps.Status
	DatabasePath string
	LockFilePath string
}

// Option customizes daemon construction.
type Option func(*Daemon)

// WithLogStream exposes the log hub through /api/logs and IPC.
func WithLogStream(hub *logging.StreamHub) Option {
	return func(d *Daemon) { d.logHub = hub }
}

// WithLogPath records the current log file for status displays.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// WithNotifier overrides the notifier used for test notifications.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithMetrics serves the registry on /metrics when enabled in config.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st store.Persister, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		workflow: wf,
		service:  api.NewBatchService(wf, wf.Bus(), extract.ParamsFromConfig(cfg.Extraction)),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	return d, nil
}

// Start acquires the daemon lock, restores persisted batches and starts the
// HTTP API when a bind address is configured.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if d.stopped.Load() {
		return errors.New("daemon was stopped; start a new process")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidslide daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Load(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("load batches: %w", err)
	}

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.abortStart()
		return err
	}
	if err := srv.start(d.ctx); err != nil {
		d.abortStart()
		return err
	}
	d.api = srv

	d.running.Store(true)
	d.logger.Info("vidslide daemon started",
		logging.String("lock", d.lockPath),
		logging.String("output_dir", d.cfg.Paths.OutputDir),
		logging.String("api", d.APIAddress()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop pauses running tasks, persists every batch and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.api = nil
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.workflow.Close(shutdownCtx); err != nil {
		logging.WarnWithContext(d.logger, "workflow shutdown incomplete", "workflow_shutdown_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "restart the daemon; interrupted tasks resume from their last frame"),
		)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.stopped.Store(true)
	d.running.Store(false)
	d.logger.Info("vidslide daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Service returns the request layer shared by the transports.
func (d *Daemon) Service() *api.BatchService {
	return d.service
}

// Workflow returns the batch manager.
func (d *Daemon) Workflow() *workflow.Manager {
	return d.workflow
}

// LogStream returns the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the address the HTTP API listens on, or "".
func (d *Daemon) APIAddress() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(),
		Health:       d.workflow.Health(ctx),
		Dependencies: deps.CheckVideoTools(ctx, d.cfg),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
}

// StatusPayload converts Status for transports.
func (d *Daemon) StatusPayload(ctx context.Context) api.DaemonStatus {
	status := d.Status(ctx)
	return api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		OutputDir:    d.cfg.Paths.OutputDir,
		APIBind:      d.APIAddress(),
		Workflow:     api.FromStatusSummary(status.Workflow, status.Health),
		Dependencies: api.FromDependencies(status.Dependencies),
	}
}
