// Package workflow runs batches of slide extractions.
//
// The Manager owns every loaded batch. Each mutation of a batch (staging,
// zone moves, lifecycle commands, worker results) is persisted through the
// store and then announced on the event bus, so subscribers never observe a
// state that would be lost on restart.
//
// While a batch is processing a dispatcher goroutine launches up to
// max_workers extraction workers in queue order. Workers report progress over
// a channel that the manager drains into the batch, and every worker result,
// including a recovered panic, is recorded on its own task so one failing
// video never stops the rest of the batch.
//
// Export packages completed tasks into ZIP or PDF files below each task's
// packages directory.
package workflow
