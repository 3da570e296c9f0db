package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vidslide/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VIDSLIDE_API_TOKEN", "env-token")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "vidslide")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "vidslide.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Paths.APIToken != "env-token" {
		t.Fatalf("expected api token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Extraction.Threshold != 5.0 {
		t.Fatalf("unexpected threshold: %v", cfg.Extraction.Threshold)
	}
	if cfg.Extraction.SpeedMode != "eco" {
		t.Fatalf("unexpected speed mode: %q", cfg.Extraction.SpeedMode)
	}
	if cfg.Extraction.MaxHistory != 5 {
		t.Fatalf("unexpected max history: %d", cfg.Extraction.MaxHistory)
	}
	if cfg.Extraction.ROI.X1 != 0.208 || cfg.Extraction.ROI.Y1 != 0.185 {
		t.Fatalf("unexpected roi: %+v", cfg.Extraction.ROI)
	}
	if cfg.Events.SubscriberBuffer != 200 {
		t.Fatalf("unexpected subscriber buffer: %d", cfg.Events.SubscriberBuffer)
	}
	if cfg.Persistence.Backend != "sqlite" {
		t.Fatalf("unexpected backend: %q", cfg.Persistence.Backend)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := struct {
		Paths struct {
			OutputDir string `toml:"output_dir"`
		} `toml:"paths"`
		Extraction struct {
			Threshold float64 `toml:"threshold"`
			SpeedMode string  `toml:"speed_mode"`
		} `toml:"extraction"`
		Workers struct {
			MaxWorkers int `toml:"max_workers"`
		} `toml:"workers"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}{}
	payload.Paths.OutputDir = "~/slides"
	payload.Extraction.Threshold = 8.5
	payload.Extraction.SpeedMode = " TURBO "
	payload.Workers.MaxWorkers = 2
	payload.Logging.Format = "JSON"

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config to be read from %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "slides") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	if cfg.Extraction.Threshold != 8.5 {
		t.Fatalf("unexpected threshold: %v", cfg.Extraction.Threshold)
	}
	if cfg.Extraction.SpeedMode != "turbo" {
		t.Fatalf("expected normalized speed mode, got %q", cfg.Extraction.SpeedMode)
	}
	if cfg.Workers.MaxWorkers != 2 {
		t.Fatalf("unexpected max workers: %d", cfg.Workers.MaxWorkers)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"extraction.threshold":     func(c *config.Config) { c.Extraction.Threshold = 0 },
		"extraction.speed_mode":    func(c *config.Config) { c.Extraction.SpeedMode = "warp" },
		"extraction.max_history":   func(c *config.Config) { c.Extraction.MaxHistory = 0 },
		"extraction.roi":           func(c *config.Config) { c.Extraction.ROI = config.ROI{X1: 0.5, Y1: 0.5, X2: 0.4, Y2: 1} },
		"workers.max_workers":      func(c *config.Config) { c.Workers.MaxWorkers = -1 },
		"persistence.backend":      func(c *config.Config) { c.Persistence.Backend = "mongo" },
		"packaging.default_format": func(c *config.Config) { c.Packaging.DefaultFormat = "pptx" },
		"events.subscriber_buffer": func(c *config.Config) { c.Events.SubscriberBuffer = 0 },
	}
	for field, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("expected validation error for %s", field)
		}
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("expected error mentioning %s, got %v", field, err)
		}
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Packaging.DefaultFormat != "zip" {
		t.Fatalf("unexpected packaging format: %q", cfg.Packaging.DefaultFormat)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}
