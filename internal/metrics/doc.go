// Package metrics exposes Prometheus collectors for the dispatcher, the
// event bus and packaging. The daemon mounts Handler on /metrics when
// metrics are enabled.
package metrics
