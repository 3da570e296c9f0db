package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vidslide/internal/config"
)

func TestCheck(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present, VersionArg: "-v"},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  ", Optional: true},
	}

	results := Check(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" || results[0].Version != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
}

func TestCheckVideoToolsReadsVersion(t *testing.T) {
	binDir := t.TempDir()
	script := []byte("#!/bin/sh\necho \"ffmpeg version 7.1 Copyright\"\necho second line\n")
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
			t.Fatalf("write stub: %v", err)
		}
	}
	cfg := config.Default()
	cfg.Tools.FFmpeg = filepath.Join(binDir, "ffmpeg")
	cfg.Tools.FFprobe = filepath.Join(binDir, "ffprobe")

	statuses := CheckVideoTools(context.Background(), &cfg)
	if len(statuses) != 2 {
		t.Fatalf("expected two statuses, got %d", len(statuses))
	}
	for _, s := range statuses {
		if !s.Available {
			t.Fatalf("expected %s available: %#v", s.Name, s)
		}
		if s.Version != "ffmpeg version 7.1 Copyright" {
			t.Fatalf("unexpected version %q", s.Version)
		}
	}
}

func TestCheckVideoToolsMissing(t *testing.T) {
	t.Setenv("PATH", "")
	cfg := config.Default()
	statuses := CheckVideoTools(context.Background(), &cfg)
	if len(Missing(statuses)) != 2 {
		t.Fatalf("expected both tools missing, got %#v", statuses)
	}
}
