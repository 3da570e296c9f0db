// Package events fans batch events out to subscribers.
//
// The Bus is a notifier only; batch state lives in the workflow manager. Each
// subscription receives a synthetic init event carrying the current batch
// snapshot followed by every event published after it subscribed, in publish
// order. Publishing never blocks: a subscriber whose buffer is full loses the
// event, and one that keeps falling behind is closed so the client can
// resubscribe and rebuild its view from a fresh init event.
//
// A bounded per-batch history backs the polling API used by the CLI.
package events
