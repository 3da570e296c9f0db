// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// Every method forwards to the daemon's batch service, so the wire payloads
// are the same request and response types the HTTP API uses. Long polls for
// events and logs are bounded on the server side; clients loop on the
// returned cursor.
package ipc
