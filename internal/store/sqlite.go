package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"vidslide/internal/batch"
	"vidslide/internal/config"
	"vidslide/internal/services"
)

// Store keeps batch snapshots in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenSQLite initializes or connects to the batch database.
func OpenSQLite(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save writes the full snapshot, replacing any previous document.
func (s *Store) Save(ctx context.Context, snap batch.Snapshot) error {
	ctx = ensureContext(ctx)
	if snap.ID == "" {
		return services.Wrap(services.ErrValidation, "store", "save", "snapshot has no id", nil)
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}
	taskCount := len(snap.Zones.Staged) + len(snap.Zones.Queued) + len(snap.Zones.Completed) + len(snap.Zones.Trashed)
	const query = `INSERT INTO batches (id, status, dir, document, task_count, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    dir = excluded.dir,
    document = excluded.document,
    task_count = excluded.task_count,
    version = excluded.version,
    updated_at = excluded.updated_at`
	return retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			snap.ID,
			string(snap.Status),
			snap.Dir,
			string(doc),
			taskCount,
			snap.Version,
			formatTime(snap.CreatedAt),
			formatTime(snap.UpdatedAt),
		)
		return execErr
	})
}

// Load returns the stored snapshot for id.
func (s *Store) Load(ctx context.Context, id string) (batch.Snapshot, error) {
	ctx = ensureContext(ctx)
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT document FROM batches WHERE id = ?", id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return batch.Snapshot{}, services.Wrap(services.ErrNotFound, "store", "load", fmt.Sprintf("batch %s", id), nil)
	}
	if err != nil {
		return batch.Snapshot{}, fmt.Errorf("load batch %s: %w", id, err)
	}
	return decodeSnapshot([]byte(doc))
}

// List returns every stored snapshot, oldest first.
func (s *Store) List(ctx context.Context) ([]batch.Snapshot, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT id, document FROM batches ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var snaps []batch.Snapshot
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		snap, err := decodeSnapshot([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("batch %s: %w", id, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Delete removes the stored snapshot. Deleting a missing batch is not an
// error.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM batches WHERE id = ?", id)
		return err
	})
}

// Checkpoint folds the WAL into the main database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
		return err
	})
}

func decodeSnapshot(data []byte) (batch.Snapshot, error) {
	var snap batch.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return batch.Snapshot{}, services.Wrap(services.ErrValidation, "store", "decode", "corrupt batch document", err)
	}
	if snap.Version > batch.SnapshotVersion {
		return batch.Snapshot{}, services.Wrap(services.ErrValidation, "store", "decode",
			fmt.Sprintf("document version %d is newer than supported %d", snap.Version, batch.SnapshotVersion), nil)
	}
	return snap, nil
}
