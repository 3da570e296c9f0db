// Package batch holds the in-memory model of an extraction batch.
//
// A Batch owns an arena of Task records indexed by id together with the
// ordered membership of the four zones (staged, queued, completed, trashed).
// Every mutation goes through Batch methods that validate the transition under
// a single short-held lock, so zone membership, task status and the running
// count can never be observed in an inconsistent combination. Zone and status
// are carried together as a State value whose constructors reject illegal
// pairs.
//
// The package performs no I/O. Callers persist Snapshot documents and publish
// events after a mutation succeeds.
package batch
