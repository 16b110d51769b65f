// Package docstore defines the publication store contract: the canonical,
// keyed-by-ID home of stored field values returned in search results.
// Implementations live in the memory and postgres sub-packages.
package docstore

import (
	"context"

	"pubfinder/internal/record"
)

// Store holds canonical publication records keyed by stable ID. Upsert is
// idempotent: re-upserting an identical record is a no-op, and a record
// sharing an ID fully replaces the stored one. No two records coexist with
// the same ID.
type Store interface {
	Upsert(ctx context.Context, rec record.Record) error

	// Get returns the record or an error wrapping ErrDocumentNotFound.
	Get(ctx context.Context, id string) (record.Record, error)

	// All returns a lazy iterator over every stored record.
	All(ctx context.Context) (Iterator, error)

	Count(ctx context.Context) (int, error)
}

// BatchUpserter is implemented by stores that can write a batch of records
// in one transaction. Callers fall back to per-record Upsert when the store
// does not support it.
type BatchUpserter interface {
	UpsertBatch(ctx context.Context, recs []record.Record) error
}

// Iterator pages through records one at a time.
type Iterator interface {
	// Next advances to the next record, returning false when exhausted or
	// on error.
	Next() bool

	// Record returns the record at the current position.
	Record() record.Record

	// Err returns the first error encountered while iterating.
	Err() error

	// Close releases any resources held by the iterator.
	Close() error
}
