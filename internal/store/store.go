package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidslide/internal/batch"
	"vidslide/internal/config"
	"vidslide/internal/logging"
)

const lockRetryDelay = 20 * time.Millisecond

// Persister saves and loads batch snapshots.
type Persister interface {
	Save(ctx context.Context, snap batch.Snapshot) error
	Load(ctx context.Context, id string) (batch.Snapshot, error)
	List(ctx context.Context) ([]batch.Snapshot, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open returns the persister selected by the persistence config.
func Open(cfg *config.Config, logger *slog.Logger) (Persister, error) {
	if cfg == nil {
		return nil, errors.New("store: config is nil")
	}
	switch cfg.Persistence.Backend {
	case "json":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return NewFileStore(cfg.Paths.OutputDir), nil
	case "", "sqlite":
		db, err := OpenSQLite(cfg)
		if err != nil {
			return nil, err
		}
		if !cfg.Persistence.MirrorJSON {
			return db, nil
		}
		return &Mirrored{
			Primary: db,
			Mirror:  NewFileStore(cfg.Paths.OutputDir),
			Logger:  logging.NewComponentLogger(logger, "store"),
		}, nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Persistence.Backend)
	}
}

// Mirrored writes every snapshot to the sqlite store and copies it to the
// batch directory. Reads are served by the primary only; mirror failures
// are logged and never fail a save.
type Mirrored struct {
	Primary *Store
	Mirror  *FileStore
	Logger  *slog.Logger
}

// Save writes to the primary and then the mirror.
func (m *Mirrored) Save(ctx context.Context, snap batch.Snapshot) error {
	if err := m.Primary.Save(ctx, snap); err != nil {
		return err
	}
	if err := m.Mirror.Save(ctx, snap); err != nil {
		logging.WarnWithContext(m.Logger, "batch json mirror write failed", "store_mirror_failed",
			logging.BatchID(snap.ID),
			logging.String(logging.FieldErrorHint, "check permissions on the output directory"),
			logging.String(logging.FieldImpact, "batch.json may be stale; the database copy is current"),
			logging.Error(err),
		)
	}
	return nil
}

// Load reads from the primary.
func (m *Mirrored) Load(ctx context.Context, id string) (batch.Snapshot, error) {
	return m.Primary.Load(ctx, id)
}

// List reads from the primary.
func (m *Mirrored) List(ctx context.Context) ([]batch.Snapshot, error) {
	return m.Primary.List(ctx)
}

// Delete removes the batch from both stores.
func (m *Mirrored) Delete(ctx context.Context, id string) error {
	if err := m.Primary.Delete(ctx, id); err != nil {
		return err
	}
	return m.Mirror.Delete(ctx, id)
}

// Checkpoint delegates to the primary store.
func (m *Mirrored) Checkpoint(ctx context.Context) error {
	return m.Primary.Checkpoint(ctx)
}

// Close closes the primary store.
func (m *Mirrored) Close() error {
	return m.Primary.Close()
}
