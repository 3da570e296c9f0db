// Package services defines shared utilities consumed by the extraction workers,
// the batch dispatcher, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, task IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the dispatcher
//     tell an unreadable video apart from a decode failure mid-run, a resource
//     exhaustion, or a cooperative interruption.
//
// Use these helpers when wiring new worker logic so operational behaviour
// (error handling, observability, retries) stays uniform across batches.
package services
