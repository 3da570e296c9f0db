// Package main hosts the VidSlide CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon: batch lifecycle, staging and zone moves, per-task
// control, slide image curation, exports, event and log tailing, plus
// configuration scaffolding. It centralizes configuration resolution and
// socket discovery so subcommands can focus on output.
//
// Keep this package lean: add new functionality to internal/api first so the
// HTTP and IPC transports stay in step, then surface it here.
package main
