// Package logging assembles structured slog loggers and formatting helpers used
// across VidSlide services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so worker code can automatically
// tag log lines with batch IDs, task IDs, stages, and correlation IDs. The
// StreamHub keeps a bounded tail of recent records for the CLI, and the
// ProgressSampler keeps per-frame progress from flooding the output.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
