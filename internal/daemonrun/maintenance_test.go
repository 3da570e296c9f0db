package daemonrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidslide/internal/logging"
	"vidslide/internal/testsupport"
)

type countingCheckpointer struct {
	calls int
	err   error
}

func (c *countingCheckpointer) Checkpoint(context.Context) error {
	c.calls++
	return c.err
}

func TestStartMaintenanceSchedulesJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.RetentionDays = 7

	sched, err := startMaintenance(logging.NewNop(), cfg, &countingCheckpointer{}, nil)
	if err != nil {
		t.Fatalf("startMaintenance: %v", err)
	}
	defer sched.Stop()
	if got := len(sched.Entries()); got != 2 {
		t.Fatalf("expected 2 jobs, got %d", got)
	}
}

func TestStartMaintenanceSkipsUnsupportedStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.RetentionDays = 0

	sched, err := startMaintenance(logging.NewNop(), cfg, struct{}{}, nil)
	if err != nil {
		t.Fatalf("startMaintenance: %v", err)
	}
	defer sched.Stop()
	if got := len(sched.Entries()); got != 0 {
		t.Fatalf("expected no jobs, got %d", got)
	}
}

func TestRunCheckpointToleratesErrors(t *testing.T) {
	cp := &countingCheckpointer{err: errors.New("busy")}
	runCheckpoint(logging.NewNop(), cp)
	if cp.calls != 1 {
		t.Fatalf("expected one checkpoint call, got %d", cp.calls)
	}
}

func TestLinkCurrentLogMovesPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "vidslide-1.log")
	second := filepath.Join(dir, "vidslide-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := linkCurrentLog(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := linkCurrentLog(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	target, err := os.Readlink(filepath.Join(dir, "vidslide.log"))
	if err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if target != second {
		t.Fatalf("pointer = %q, want %q", target, second)
	}
}

func TestOpenLogSessionWritesFileAndHub(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	session, err := openLogSession(cfg, Options{LogLevel: "debug", Diagnostic: true})
	if err != nil {
		t.Fatalf("openLogSession: %v", err)
	}
	session.logger.Debug("scan finished", logging.BatchID("b1"))

	data, err := os.ReadFile(session.path)
	if err != nil {
		t.Fatalf("read session log: %v", err)
	}
	if !strings.Contains(string(data), "scan finished") || !strings.Contains(string(data), "session_id=") {
		t.Fatalf("unexpected log file contents: %q", data)
	}
	tail, _ := session.hub.Tail(logging.LogQuery{BatchID: "b1"})
	if len(tail) != 1 || tail[0].Message != "scan finished" {
		t.Fatalf("expected hub to hold the debug record, got %+v", tail)
	}
}
