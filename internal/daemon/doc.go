// Package daemon coordinates the long-running VidSlide process.
//
// It wires configuration, batch persistence and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Start restores persisted batches before any transport accepts requests;
// Stop pauses running workers so their tasks resume after the next start.
//
// The optional HTTP API (paths.api_bind) exposes every batch operation as a
// JSON endpoint, streams batch events as server-sent events, tails the log
// hub and serves prometheus metrics. Requests are authenticated with the
// configured bearer token.
//
// Keep orchestration logic here: batch semantics live in internal/batch and
// internal/workflow while the daemon focuses on startup, shutdown, and
// transport.
package daemon
