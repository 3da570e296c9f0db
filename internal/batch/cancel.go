package batch

import "sync/atomic"

// CancelToken is shared between a task record and the worker running it.
// The worker polls Cancelled at its checkpoints.
type CancelToken struct {
	cancel atomic.Bool
	pause  atomic.Bool
}

// Request asks the worker to stop. pause selects a resumable stop.
func (c *CancelToken) Request(pause bool) {
	c.pause.Store(pause)
	c.cancel.Store(true)
}

// Cancelled reports whether a stop was requested.
func (c *CancelToken) Cancelled() bool {
	return c.cancel.Load()
}

// PauseIntent reports whether the requested stop should keep the task
// resumable.
func (c *CancelToken) PauseIntent() bool {
	return c.pause.Load()
}

// Reset clears both flags.
func (c *CancelToken) Reset() {
	c.cancel.Store(false)
	c.pause.Store(false)
}
