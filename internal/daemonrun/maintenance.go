package daemonrun

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"vidslide/internal/config"
	"vidslide/internal/logging"
)

const (
	retentionSchedule  = "@daily"
	checkpointSchedule = "@every 15m"
	checkpointTimeout  = time.Minute
)

type checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// startMaintenance schedules log retention and, for stores that support it,
// periodic WAL checkpoints. The returned scheduler is already running.
func startMaintenance(logger *slog.Logger, cfg *config.Config, st any, retention []logging.RetentionTarget) (*cron.Cron, error) {
	logger = logging.NewComponentLogger(logger, "maintenance")
	sched := cron.New()

	if cfg.Logging.RetentionDays > 0 {
		if _, err := sched.AddFunc(retentionSchedule, func() {
			if pruned := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, retention...); pruned > 0 {
				logger.Info("log retention sweep finished", logging.Int("pruned", pruned))
			}
		}); err != nil {
			return nil, err
		}
	}

	if cp, ok := st.(checkpointer); ok {
		if _, err := sched.AddFunc(checkpointSchedule, func() {
			runCheckpoint(logger, cp)
		}); err != nil {
			return nil, err
		}
	}

	sched.Start()
	logger.Debug("maintenance scheduled", logging.Int("jobs", len(sched.Entries())))
	return sched, nil
}

func runCheckpoint(logger *slog.Logger, cp checkpointer) {
	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()
	if err := cp.Checkpoint(ctx); err != nil {
		logging.WarnWithContext(logger, "state checkpoint failed", "store_checkpoint_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the sqlite WAL keeps growing until the next checkpoint"),
		)
	}
}
