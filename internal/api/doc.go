// Package api defines wire-format types and the batch service shared by the
// IPC and HTTP layers. Both transports decode a request type from this
// package, hand it to BatchService and encode the response type back, so the
// two surfaces cannot drift apart.
//
// # Key Types
//
// BatchService: validates transport requests (zone names, cancel intents,
// restore actions, parameter overrides) and forwards them to the workflow
// manager.
//
// ParamsOverride: partial extraction parameters; unset fields keep the batch
// or configuration defaults.
//
// DaemonStatus: aggregated runtime information including health checks and
// external tool availability.
//
// LogStreamResponse / EventsResponse: cursor based payloads for log tailing and
// event polling.
//
// # Errors
//
// StatusCode maps the error markers from internal/services onto HTTP status
// codes; ErrorKind yields the stable string sent to clients alongside the
// message.
//
// # Design Notes
//
// Domain payloads (batch.Snapshot, batch.Summary, events.Event) are already
// JSON shaped with snake_case tags and are passed through unchanged.
package api
