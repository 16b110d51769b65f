package memory

import (
	"context"
	"errors"
	"testing"

	"pubfinder/internal/record"
	apperrors "pubfinder/pkg/errors"
)

// TestUpsertGet verifies round-tripping a record and overwriting it.
func TestUpsertGet(t *testing.T) {
	store := New()
	ctx := context.Background()
	rec := record.Record{ID: "a", Title: "First", URL: "u"}

	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Title != "First" {
		t.Errorf("Title = %q", got.Title)
	}

	rec.Title = "Second"
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	got, _ = store.Get(ctx, "a")
	if got.Title != "Second" {
		t.Errorf("Title after overwrite = %q", got.Title)
	}
	if count, _ := store.Count(ctx); count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}
}

// TestGetMissing verifies the not-found sentinel.
func TestGetMissing(t *testing.T) {
	store := New()
	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Fatalf("want ErrDocumentNotFound, got %v", err)
	}
}

// TestAllIteratesSorted verifies iteration covers every record in ID order
// and is unaffected by writes after the snapshot.
func TestAllIteratesSorted(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if err := store.Upsert(ctx, record.Record{ID: id, Title: id, URL: "u"}); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
	}

	it, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	defer it.Close()

	// Writes during iteration must not affect the snapshot.
	if err := store.Upsert(ctx, record.Record{ID: "d", Title: "d", URL: "u"}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	var ids []string
	for it.Next() {
		ids = append(ids, it.Record().ID)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}
