// Package memory provides an in-memory docstore.Store used as the default
// backend and as the test double for the Postgres store.
package memory

import (
	"context"
	"sort"
	"sync"

	"pubfinder/internal/docstore"
	"pubfinder/internal/record"
	apperrors "pubfinder/pkg/errors"
)

// Store is a mutex-guarded map of records keyed by ID.
type Store struct {
	mu   sync.RWMutex
	docs map[string]record.Record
}

// New creates an empty Store.
func New() *Store {
	return &Store{docs: make(map[string]record.Record)}
}

// Upsert inserts or wholesale-replaces the record with the same ID.
func (s *Store) Upsert(_ context.Context, rec record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[rec.ID] = rec
	return nil
}

// Get returns the stored record for id.
func (s *Store) Get(_ context.Context, id string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[id]
	if !ok {
		return record.Record{}, apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "id %s", id)
	}
	return rec, nil
}

// All returns an iterator over a point-in-time copy of the store, ordered
// by ID for determinism.
func (s *Store) All(_ context.Context) (docstore.Iterator, error) {
	s.mu.RLock()
	records := make([]record.Record, 0, len(s.docs))
	for _, rec := range s.docs {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return &iterator{records: records, pos: -1}, nil
}

// Count returns the number of stored records.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

type iterator struct {
	records []record.Record
	pos     int
}

func (it *iterator) Next() bool {
	if it.pos+1 >= len(it.records) {
		return false
	}
	it.pos++
	return true
}

func (it *iterator) Record() record.Record {
	return it.records[it.pos]
}

func (it *iterator) Err() error { return nil }

func (it *iterator) Close() error {
	it.records = nil
	return nil
}
