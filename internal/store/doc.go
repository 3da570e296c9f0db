// Package store persists batch snapshots.
//
// The default backend keeps one JSON document per batch in a SQLite table
// opened through modernc.org/sqlite. Every save is a full overwrite, so a
// snapshot written after each mutation is enough to recover the batch after
// a restart. The json backend, and the optional mirror of the sqlite
// backend, writes the same document to batch.json inside the batch output
// directory guarded by a gofrs/flock file lock so external tools can read a
// consistent copy.
package store
