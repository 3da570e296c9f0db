package daemonrun

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"vidslide/internal/config"
	"vidslide/internal/daemon"
	"vidslide/internal/deps"
	"vidslide/internal/ipc"
	"vidslide/internal/logging"
	"vidslide/internal/logs"
	"vidslide/internal/metrics"
	"vidslide/internal/notifications"
	"vidslide/internal/store"
	"vidslide/internal/video"
	"vidslide/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the vidslide daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, err := openLogSession(cfg, opts)
	if err != nil {
		return err
	}
	logger := session.logger

	logDependencySnapshot(signalCtx, logger, cfg)
	if err := linkCurrentLog(cfg.Paths.LogDir, session.path); err != nil {
		logger.Warn("unable to update vidslide.log link", logging.Error(err))
	}
	retention := []logging.RetentionTarget{
		{Dir: cfg.Paths.LogDir, Pattern: "vidslide-*.log", Exclude: []string{session.path}},
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, retention...)

	pidPath := cfg.PIDPath()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg, logger)
	if err != nil {
		logger.Error("open batch store", logging.Error(err))
		return err
	}

	notifier := notifications.NewService(cfg)
	collectors := metrics.New()
	decoder := video.NewFFmpegDecoder(cfg.FFmpegBinary(), cfg.FFprobeBinary(), logger)
	manager := workflow.NewManager(cfg, st, decoder, logger,
		workflow.WithNotifier(notifier),
		workflow.WithMetrics(collectors),
	)

	d, err := daemon.New(cfg, st, logger, manager,
		daemon.WithLogStream(session.hub),
		daemon.WithLogPath(session.path),
		daemon.WithNotifier(notifier),
		daemon.WithMetrics(collectors),
	)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that no other vidslided holds the lock and the state directory is writable"),
			logging.String(logging.FieldImpact, "no batches can be processed"),
		)
		return err
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, ipc.WithStopHandler(cancel))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	sched, err := startMaintenance(logger, cfg, st, retention)
	if err != nil {
		logging.WarnWithContext(logger, "maintenance scheduler unavailable", "maintenance_schedule_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old logs are only pruned at startup"),
		)
	} else {
		defer sched.Stop()
	}

	<-signalCtx.Done()
	logger.Info("vidslide daemon shutting down")
	return nil
}

type logSession struct {
	logger *slog.Logger
	hub    *logging.StreamHub
	path   string
}

// openLogSession creates this run's timestamped log file and the in-memory
// hub served to `vidslide logs`. Diagnostic runs stamp a session id on
// every record.
func openLogSession(cfg *config.Config, opts Options) (logSession, error) {
	session := logSession{
		hub:  logging.NewStreamHub(4096),
		path: filepath.Join(cfg.Paths.LogDir, "vidslide-"+time.Now().UTC().Format("20060102T150405.000Z")+".log"),
	}
	var sessionID string
	if opts.Diagnostic {
		sessionID = uuid.NewString()
	}
	level := cmp.Or(opts.LogLevel, cfg.Logging.Level)
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", session.path},
		ErrorOutputPaths: []string{"stderr"},
		Development:      opts.Development,
		Hub:              session.hub,
		SessionID:        sessionID,
	})
	if err != nil {
		return logSession{}, fmt.Errorf("init logger: %w", err)
	}
	if sessionID != "" {
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String(logging.FieldSessionID, sessionID),
		)
	}
	session.logger = logger
	return session, nil
}

// linkCurrentLog points vidslide.log at target, falling back to a hard link
// where symlinks are unavailable.
func linkCurrentLog(logDir, target string) error {
	current := logs.CurrentLogPath(logDir)
	if err := os.Remove(current); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if os.Symlink(target, current) == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []any{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range deps.CheckVideoTools(ctx, cfg) {
		attrs = append(attrs,
			logging.Bool(status.Name+"_available", status.Available),
			logging.String(status.Name+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", attrs...)
}
