// Package notifications delivers batch events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Batch and error notifications can be toggled separately, and
// repeated task errors are suppressed inside a de-duplication window.
//
// All workflow code depends only on the Service interface.
package notifications
