// Package archive persists chat transcripts to PostgreSQL.
//
// Decoded chat envelopes flow through a growable in-memory buffer into
// a batch writer. Writes are append-only; replayed messages are
// deduplicated by message id at insert time.
package archive
