package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidslide/internal/config"
)

// ConfigOption adjusts a config built by NewConfig. The temp root is passed
// for options that need to place files next to the config directories.
type ConfigOption func(t testing.TB, root string, cfg *config.Config)

// NewConfig returns defaults rooted in a fresh temp directory with
// notifications, metrics and the disk warning turned off.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(root, "output")
	cfg.Paths.StateDir = filepath.Join(root, "state")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Workers.MaxWorkers = 2
	cfg.Workers.DiskWarningMB = 0
	cfg.Notifications.NtfyTopic = ""
	cfg.Metrics.Enabled = false
	for _, opt := range opts {
		opt(t, root, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp root NewConfig placed the directories under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}

func WithMaxWorkers(n int) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		cfg.Workers.MaxWorkers = n
	}
}

func WithPersistence(backend string, mirror bool) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		cfg.Persistence.Backend = backend
		cfg.Persistence.MirrorJSON = mirror
	}
}

// WithStubbedBinaries puts no-op executables named after names (ffmpeg and
// ffprobe by default) first on PATH for the duration of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = []string{"ffmpeg", "ffprobe"}
	}
	return func(t testing.TB, root string, _ *config.Config) {
		bin := filepath.Join(root, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", bin, err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
