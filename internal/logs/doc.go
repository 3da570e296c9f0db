// Package logs reads daemon log files without a running daemon.
//
// The daemon writes one JSON record per line to vidslide-<run>.log and keeps
// vidslide.log pointing at the current run. Tail decodes those records into
// logging.LogEvent values, applies batch and task filters, and supports
// "last N entries" plus offset-based follow polling. The CLI uses it as the
// offline fallback for `vidslide logs`; when the daemon is reachable the IPC
// log hub is preferred.
//
// Console-format lines that are not JSON are returned as plain messages.
package logs
