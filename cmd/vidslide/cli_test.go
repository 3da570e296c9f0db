package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidslide/internal/batch"
	"vidslide/internal/daemonctl"
	"vidslide/internal/extract"
)

func TestBatchWorkflowThroughCLI(t *testing.T) {
	env := setupCLITestEnv(t)

	snap := env.createBatch(t, "--threshold", "0.2", "--speed", "eco")
	if snap.Params.Threshold != 0.2 || snap.Params.SpeedMode != extract.SpeedEco {
		t.Fatalf("params override not applied: %+v", snap.Params)
	}
	batchID := snap.ID

	dir := env.writeVideos(t, "a.mp4", "b.mp4")
	out := env.run(t, "task", "add", batchID, "--folder", dir, "--series", "Lecture 1")
	requireContains(t, out, "Staged 2 video(s)")

	snap = env.snapshot(t, batchID)
	if len(snap.Zones.Staged) != 2 {
		t.Fatalf("expected 2 staged tasks, got %d", len(snap.Zones.Staged))
	}
	if snap.Zones.Staged[0].DisplayName != "Lecture 1" || snap.Zones.Staged[1].DisplayName != "Lecture 2" {
		t.Fatalf("unexpected names: %q, %q", snap.Zones.Staged[0].DisplayName, snap.Zones.Staged[1].DisplayName)
	}
	first := snap.Zones.Staged[0].ID
	second := snap.Zones.Staged[1].ID

	out = env.run(t, "zone", "list", batchID, "staged")
	requireContains(t, out, "Lecture 1")

	out = env.run(t, "zone", "move", batchID, first, second, "--from", "staged", "--to", "queued")
	requireContains(t, out, "Moved 2 task(s) from staged to queued")

	out = env.run(t, "zone", "reorder", batchID, "queued", second, first)
	requireContains(t, out, "Zone queued reordered")

	out = env.run(t, "batch", "start", batchID)
	requireContains(t, out, "started")

	waitFor(t, 10*time.Second, func() bool {
		snap = env.snapshot(t, batchID)
		return snap.Status == batch.BatchIdle && len(snap.Zones.Completed) == 2
	})

	out = env.run(t, "batch", "show", batchID)
	requireContains(t, out, "Completed (2)")

	out = env.run(t, "task", "images", batchID, first)
	images := strings.Fields(strings.TrimSpace(out))
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %q", out)
	}
	out = env.run(t, "task", "trash-images", batchID, first, images[0])
	requireContains(t, out, "Trashed 1 image(s)")
	out = env.run(t, "task", "images", batchID, first, "--trashed")
	requireContains(t, out, images[0])
	out = env.run(t, "task", "restore-images", batchID, first, images[0])
	requireContains(t, out, "Restored 1 image(s)")

	out = env.run(t, "batch", "export", batchID, "--format", "zip")
	requireContains(t, out, "2 exported, 0 failed")

	out = env.run(t, "batch", "events", batchID)
	if strings.TrimSpace(out) == "" {
		t.Fatal("expected event output")
	}

	out = env.run(t, "logs", "--batch", batchID, "--lines", "200")
	requireContains(t, out, batchID)

	out = env.run(t, "batch", "list")
	requireContains(t, out, batchID)

	out = env.run(t, "task", "trash", batchID, second, "--reason", "duplicate")
	requireContains(t, out, "trashed")
	out = env.run(t, "task", "restore", batchID, second, "--action", "to_completed")
	requireContains(t, out, "restored (to_completed)")

	out = env.run(t, "task", "rename", batchID, second, "Lecture 2 (redo)")
	requireContains(t, out, "renamed")
	snap = env.snapshot(t, batchID)
	found := false
	for _, rec := range snap.Zones.Completed {
		if rec.ID == second && rec.DisplayName == "Lecture 2 (redo)" {
			found = true
		}
	}
	if !found {
		t.Fatalf("rename not applied: %+v", snap.Zones.Completed)
	}
}

func TestTaskAddRequiresVideos(t *testing.T) {
	env := setupCLITestEnv(t)
	snap := env.createBatch(t)

	_, _, err := runCLI(t, []string{"task", "add", snap.ID}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--folder") {
		t.Fatalf("expected missing videos error, got %v", err)
	}
}

func TestZoneMoveRequiresZones(t *testing.T) {
	env := setupCLITestEnv(t)
	snap := env.createBatch(t)

	_, _, err := runCLI(t, []string{"zone", "move", snap.ID, "x"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--from and --to") {
		t.Fatalf("expected zone flag error, got %v", err)
	}
}

func TestBatchShowUnknownBatch(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"batch", "show", "missing"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown batch to fail")
	}
}

func TestBatchWorkersAndDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	snap := env.createBatch(t)

	out := env.run(t, "batch", "workers", snap.ID, "1")
	requireContains(t, out, "Workers set to 1")

	out = env.run(t, "batch", "delete", snap.ID, "--remove-files")
	requireContains(t, out, "files removed: yes")
	if _, err := os.Stat(snap.Dir); !os.IsNotExist(err) {
		t.Fatalf("expected batch dir removed, stat err %v", err)
	}
}

func TestDaemonStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	env.createBatch(t)

	out := env.run(t, "--json", "daemon", "status")
	var snap daemonctl.StatusSnapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode status: %v (%q)", err, out)
	}
	if !snap.Daemon.Running {
		t.Fatalf("expected running daemon: %+v", snap.Daemon)
	}
	if len(snap.Batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(snap.Batches))
	}

	out = env.run(t, "daemon", "status")
	requireContains(t, out, "== System Status ==")
	requireContains(t, out, "== Batches ==")
}

func TestDaemonStatusOffline(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(env.baseDir, "missing.sock")

	out, _, err := runCLI(t, []string{"daemon", "status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	requireContains(t, out, "Not running")
}

func TestDaemonStopWhenNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(env.baseDir, "missing.sock")

	out, _, err := runCLI(t, []string{"daemon", "stop"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out := env.run(t, "--json", "test-notify")
	var resp struct {
		Sent bool `json:"sent"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if resp.Sent {
		t.Fatal("expected no notification without a topic")
	}
}

func TestMissingSocketMentionsDaemonStart(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(env.baseDir, "missing.sock")

	_, _, err := runCLI(t, []string{"batch", "list"}, missing, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "vidslide daemon start") {
		t.Fatalf("expected daemon start hint, got %v", err)
	}
}

func TestLogsFallsBackToLogFile(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(env.baseDir, "missing.sock")
	line := `{"ts":"2026-03-01T10:00:00Z","level":"info","msg":"offline entry","batch_id":"b1"}` + "\n"
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, "vidslide.log"), []byte(line), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, stderr, err := runCLI(t, []string{"logs", "--batch", "b1"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "offline entry")
	requireContains(t, out, "batch=b1")
	requireContains(t, stderr, "Daemon not reachable")
}
