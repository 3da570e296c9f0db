package preflight

import (
	"context"
	"fmt"
	"strings"

	"vidslide/internal/config"
	"vidslide/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the readiness checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Workers.DiskWarningMB > 0 {
		results = append(results, CheckDiskSpace("Output free space", cfg.Paths.OutputDir, uint64(cfg.Workers.DiskWarningMB)))
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, depResult(status))
	}
	return results
}

// Failed returns the failing results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func depResult(status deps.Status) Result {
	if status.Available {
		detail := status.Command
		if status.Version != "" {
			detail = fmt.Sprintf("%s (%s)", status.Command, status.Version)
		}
		return Result{Name: status.Name, Passed: true, Detail: detail}
	}
	detail := strings.TrimSpace(status.Detail)
	if status.Description != "" {
		detail = fmt.Sprintf("%s; %s", detail, strings.ToLower(status.Description))
	}
	return Result{Name: status.Name, Passed: status.Optional, Detail: detail}
}
