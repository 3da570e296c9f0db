package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"vidslide/internal/batch"
	"vidslide/internal/fileutil"
	"vidslide/internal/services"
)

// DocumentName is the per-batch state file written by FileStore.
const DocumentName = "batch.json"

const lockSuffix = ".lock"

// FileStore keeps each batch snapshot as batch.json inside the batch
// directory below root.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at the output directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the directory holding batch directories.
func (f *FileStore) Root() string { return f.root }

func (f *FileStore) dirFor(snap batch.Snapshot) string {
	if strings.TrimSpace(snap.Dir) != "" {
		return snap.Dir
	}
	return filepath.Join(f.root, DirName(snap.ID))
}

// Save writes the snapshot atomically while holding the document lock.
func (f *FileStore) Save(ctx context.Context, snap batch.Snapshot) error {
	if snap.ID == "" {
		return services.Wrap(services.ErrValidation, "store", "save", "snapshot has no id", nil)
	}
	dir := f.dirFor(snap)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create batch dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}
	path := filepath.Join(dir, DocumentName)
	return withLock(ctx, path, func() error {
		return fileutil.WriteFileAtomic(path, data, 0o644)
	})
}

// Load reads the snapshot of id from its conventional directory, falling
// back to a scan of root for batches stored elsewhere.
func (f *FileStore) Load(ctx context.Context, id string) (batch.Snapshot, error) {
	path := filepath.Join(f.root, DirName(id), DocumentName)
	snap, err := f.read(ctx, path)
	if err == nil && snap.ID == id {
		return snap, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return batch.Snapshot{}, err
	}
	all, listErr := f.List(ctx)
	if listErr != nil {
		return batch.Snapshot{}, listErr
	}
	for _, candidate := range all {
		if candidate.ID == id {
			return candidate, nil
		}
	}
	return batch.Snapshot{}, services.Wrap(services.ErrNotFound, "store", "load", fmt.Sprintf("batch %s", id), nil)
}

// List returns every snapshot found one level below root, oldest first.
// Unreadable documents are skipped.
func (f *FileStore) List(ctx context.Context) ([]batch.Snapshot, error) {
	entries, err := os.ReadDir(f.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	var snaps []batch.Snapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snap, err := f.read(ctx, filepath.Join(f.root, entry.Name(), DocumentName))
		if err != nil {
			continue
		}
		snaps = append(snaps, snap)
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return snaps, nil
}

// Delete removes the state document of id. Task output is left in place.
func (f *FileStore) Delete(ctx context.Context, id string) error {
	snap, err := f.Load(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	path := filepath.Join(f.dirFor(snap), DocumentName)
	if err := withLock(ctx, path, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}); err != nil {
		return err
	}
	_ = os.Remove(path + lockSuffix)
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error { return nil }

func (f *FileStore) read(ctx context.Context, path string) (batch.Snapshot, error) {
	var data []byte
	err := withLock(ctx, path, func() error {
		var readErr error
		data, readErr = os.ReadFile(path)
		return readErr
	})
	if err != nil {
		return batch.Snapshot{}, err
	}
	return decodeSnapshot(data)
}

func withLock(ctx context.Context, path string, fn func() error) error {
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return err
	}
	lock := flock.New(path + lockSuffix)
	locked, err := lock.TryLockContext(ensureContext(ctx), lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", filepath.Base(path), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", filepath.Base(path))
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}
