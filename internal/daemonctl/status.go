package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidslide/internal/api"
	"vidslide/internal/batch"
	"vidslide/internal/config"
	"vidslide/internal/ipc"
	"vidslide/internal/logging"
	"vidslide/internal/preflight"
	"vidslide/internal/store"
)

// StatusLine is one labelled row of the status report.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missing_required"`
	MissingOptional int    `json:"missing_optional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// StatusSnapshot is the combined status report printed by the CLI.
type StatusSnapshot struct {
	Daemon            api.DaemonStatus  `json:"daemon"`
	Batches           []batch.Summary   `json:"batches"`
	SystemChecks      []StatusLine      `json:"system_checks"`
	DependencySummary DependencySummary `json:"dependency_summary"`
}

// BuildStatusSnapshot asks the daemon for its status. When the daemon is
// offline the batch list comes from the store and dependencies are probed
// locally.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &StatusSnapshot{}
	if client, err := ipc.Dial(socketPath); err == nil {
		if status, err := client.Status(); err == nil {
			snap.Daemon = *status
		}
		if list, err := client.ListBatches(); err == nil {
			snap.Batches = list.Batches
		}
		_ = client.Close()
	}

	if !snap.Daemon.Running {
		snap.Daemon.DatabasePath = cfg.DatabasePath()
		snap.Daemon.LockFilePath = cfg.LockPath()
		snap.Daemon.OutputDir = cfg.Paths.OutputDir
		storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		summaries, err := offlineBatches(storeCtx, cfg)
		cancel()
		if err == nil {
			snap.Batches = summaries
		}
	}
	if len(snap.Daemon.Dependencies) == 0 {
		snap.Daemon.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(ctx, cfg))
	}
	snap.SystemChecks = systemChecks(cfg, snap.Daemon.Running)
	snap.DependencySummary = BuildDependencySummary(snap.Daemon.Dependencies)
	return snap, nil
}

func offlineBatches(ctx context.Context, cfg *config.Config) ([]batch.Summary, error) {
	st, err := store.Open(cfg, logging.NewNop())
	if err != nil {
		return nil, err
	}
	defer st.Close()
	snaps, err := st.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]batch.Summary, 0, len(snaps))
	for _, s := range snaps {
		if b, err := batch.FromSnapshot(s, time.Now); err == nil {
			out = append(out, b.Summary())
		}
	}
	return out, nil
}

func severity(passed bool, failed string) string {
	if passed {
		return "ok"
	}
	return failed
}

func systemChecks(cfg *config.Config, daemonRunning bool) []StatusLine {
	daemonLine := StatusLine{Label: "VidSlide", Severity: "ok", Detail: "Running"}
	if !daemonRunning {
		daemonLine = StatusLine{Label: "VidSlide", Severity: "warn", Detail: "Not running (run `vidslide daemon start`)"}
	}
	lines := []StatusLine{daemonLine}

	for _, r := range []preflight.Result{
		preflight.CheckDirectoryAccess("Output", cfg.Paths.OutputDir),
		preflight.CheckDirectoryAccess("State", cfg.Paths.StateDir),
	} {
		lines = append(lines, StatusLine{Label: r.Name, Severity: severity(r.Passed, "error"), Detail: r.Detail})
	}
	if cfg.Workers.DiskWarningMB > 0 {
		r := preflight.CheckDiskSpace("Free space", cfg.Paths.OutputDir, uint64(cfg.Workers.DiskWarningMB))
		lines = append(lines, StatusLine{Label: r.Name, Severity: severity(r.Passed, "warn"), Detail: r.Detail})
	}
	lines = append(lines, StatusLine{
		Label:    "Workers",
		Severity: "info",
		Detail:   fmt.Sprintf("%d per batch (ceiling %d)", preflight.ResolveMaxWorkers(cfg.Workers.MaxWorkers), preflight.WorkerCeiling()),
	})

	notify := StatusLine{Label: "Notifications", Severity: "info", Detail: "Not configured"}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		notify = StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"}
	}
	lines = append(lines, notify)
	if bind := strings.TrimSpace(cfg.Paths.APIBind); cfg.Metrics.Enabled && bind != "" {
		lines = append(lines, StatusLine{Label: "Metrics", Severity: "ok", Detail: "http://" + bind + "/metrics"})
	}
	return lines
}

// BuildDependencySummary counts available and missing dependencies. Any
// missing required dependency makes the summary an error.
func BuildDependencySummary(deps []api.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{Severity: "info", Detail: "No dependency checks configured"}
	}
	s := DependencySummary{Total: len(deps)}
	for _, dep := range deps {
		switch {
		case dep.Available:
			s.Available++
		case dep.Optional:
			s.MissingOptional++
		default:
			s.MissingRequired++
		}
	}
	switch {
	case s.MissingRequired > 0:
		s.Severity = "error"
	case s.MissingOptional > 0:
		s.Severity = "warn"
	default:
		s.Severity = "ok"
	}
	s.Detail = fmt.Sprintf("%d/%d available", s.Available, s.Total)
	if s.Available < s.Total {
		s.Detail += fmt.Sprintf(" (missing: %d required, %d optional)", s.MissingRequired, s.MissingOptional)
	}
	return s
}
