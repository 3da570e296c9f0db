package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidslide/internal/batch"
	"vidslide/internal/config"
	"vidslide/internal/daemon"
	"vidslide/internal/ipc"
	"vidslide/internal/logging"
	"vidslide/internal/testsupport"
	"vidslide/internal/testsupport/fakevideo"
	"vidslide/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	decoder    *fakevideo.Decoder
	socketPath string
	configPath string
	baseDir    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Paths.APIBind = ""
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "vidslide", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	decoder := fakevideo.NewDecoder(2,
		fakevideo.Scene{Frames: 10, Shade: 0},
		fakevideo.Scene{Frames: 10, Shade: 200},
	)
	st := testsupport.MustOpenStore(t, cfg)
	hub := logging.NewStreamHub(256)
	logPath := filepath.Join(cfg.Paths.LogDir, "vidslide-test.log")
	logger, err := logging.New(logging.Options{
		Level:            "debug",
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
		Hub:              hub,
	})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	mgr := workflow.NewManager(cfg, st, decoder, logger, workflow.WithWorkerCeiling(2))
	d, err := daemon.New(cfg, st, logger, mgr, daemon.WithLogStream(hub), daemon.WithLogPath(logPath))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		server:     srv,
		decoder:    decoder,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		decoder.Release()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, e.socketPath, e.configPath)
	if err != nil {
		t.Fatalf("vidslide %s: %v (stderr %q)", strings.Join(args, " "), err, stderr)
	}
	return out
}

func (e *cliTestEnv) createBatch(t *testing.T, extra ...string) batch.Snapshot {
	t.Helper()
	out := e.run(t, append([]string{"--json", "batch", "create"}, extra...)...)
	var snap batch.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode batch: %v (%q)", err, out)
	}
	return snap
}

func (e *cliTestEnv) snapshot(t *testing.T, batchID string) batch.Snapshot {
	t.Helper()
	out := e.run(t, "--json", "batch", "show", batchID)
	var snap batch.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode batch: %v (%q)", err, out)
	}
	return snap
}

func (e *cliTestEnv) writeVideos(t *testing.T, names ...string) string {
	t.Helper()
	dir := filepath.Join(e.baseDir, "videos")
	testsupport.WriteVideos(t, dir, names...)
	return dir
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\noutput_dir = %q\nstate_dir = %q\nlog_dir = %q\napi_bind = %q\napi_token = %q\n\n[workers]\nmax_workers = %d\ndisk_warning_mb = 0\n",
		cfg.Paths.OutputDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Paths.APIToken,
		cfg.Workers.MaxWorkers,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
