package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidslide/internal/services"
)

func TestConsoleHandlerRendersSubject(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger = NewComponentLogger(logger, "dispatcher").With(
		String(FieldBatchID, "0123456789abcdef"),
		String(FieldTaskID, "fedcba9876543210"),
	)
	logger.Info("task started", Int("saved", 3), String("name", "Lecture 1"))

	line := buf.String()
	for _, fragment := range []string{
		"INFO dispatcher 01234567/fedcba98: task started",
		"saved=3",
		`name="Lecture 1"`,
	} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "batch_id=") {
		t.Fatalf("expected batch id folded into subject, got %q", line)
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info line should be filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "WARN shown") {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	hub := NewStreamHub(8)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub))

	ctx := services.WithBatchID(context.Background(), "b1")
	ctx = services.WithTaskID(ctx, "t1")
	ctx = services.WithRequestID(ctx, "req")
	WithContext(ctx, logger).Info("hello")

	events, _ := hub.Tail(LogQuery{Limit: 1})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.BatchID != "b1" || evt.TaskID != "t1" || evt.CorrelationID != "req" {
		t.Fatalf("unexpected event fields: %+v", evt)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	hub := NewStreamHub(8)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub))

	WarnWithContext(logger, "disk low", "disk_space_low", String(FieldImpact, "task skipped"))

	events, _ := hub.Tail(LogQuery{Limit: 1})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	fields := events[0].Fields
	if fields[FieldEventType] != "disk_space_low" {
		t.Fatalf("unexpected event type: %q", fields[FieldEventType])
	}
	if fields[FieldImpact] != "task skipped" {
		t.Fatalf("expected explicit impact to be kept, got %q", fields[FieldImpact])
	}
	if fields[FieldErrorHint] == "" {
		t.Fatal("expected default error hint")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewJSONStampsSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidslide.log")
	logger, err := New(Options{Level: "info", Format: "json", OutputPaths: []string{path}, ErrorOutputPaths: []string{}, SessionID: "diag-1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("ready", BatchID("b1"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if record[JSONMessageKey] != "ready" || record[JSONLevelKey] != "info" {
		t.Fatalf("unexpected record %v", record)
	}
	if record[FieldSessionID] != "diag-1" || record[FieldBatchID] != "b1" {
		t.Fatalf("expected session and batch fields, got %v", record)
	}
	if _, ok := record[JSONTimeKey].(string); !ok {
		t.Fatalf("expected string timestamp, got %v", record[JSONTimeKey])
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
