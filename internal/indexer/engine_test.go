package indexer

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"pubfinder/internal/docstore/memory"
	"pubfinder/internal/index/segment"
	"pubfinder/internal/record"
	"pubfinder/pkg/config"
	apperrors "pubfinder/pkg/errors"
)

func testConfig(t *testing.T) config.IndexerConfig {
	t.Helper()
	return config.IndexerConfig{
		DataDir:            t.TempDir(),
		CheckpointInterval: time.Minute,
		BatchWorkers:       2,
	}
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	engine, err := NewEngine(store, testConfig(t))
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return engine, store
}

func testRecord(title string) record.Record {
	return record.Record{
		Title:           title,
		Authors:         []string{"Jane Doe", "John Smith"},
		Year:            2021,
		URL:             "https://example.org/pub/" + title,
		PublicationType: "Conference Paper",
		CrawledAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

// TestIngestIndexesScoredFields verifies one ingest populates postings in
// every scored field and upserts the record into the store.
func TestIngestIndexesScoredFields(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	rec := testRecord("Distributed Graph Processing")
	if err := engine.Ingest(ctx, rec); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	id := record.StableID(rec.Title, rec.URL)
	if got := engine.Postings(record.FieldTitle, "graph"); len(got) != 1 || got[0].DocID != id {
		t.Errorf("title postings = %v", got)
	}
	if got := engine.Postings(record.FieldAuthors, "jane doe"); len(got) != 1 {
		t.Errorf("author postings = %v", got)
	}
	if got := engine.Postings(record.FieldType, "conference"); len(got) != 1 {
		t.Errorf("type postings = %v", got)
	}
	if got := engine.Postings(record.FieldTitleNgram, "gra"); len(got) != 1 {
		t.Errorf("ngram postings = %v", got)
	}
	if _, err := store.Get(ctx, id); err != nil {
		t.Errorf("record missing from store: %v", err)
	}
}

// TestIngestIdempotent verifies replaying an identical record leaves index
// statistics unchanged.
func TestIngestIdempotent(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	rec := testRecord("Streaming Joins at Scale")

	if err := engine.Ingest(ctx, rec); err != nil {
		t.Fatalf("first Ingest() error: %v", err)
	}
	statsBefore := engine.FieldStats(record.FieldTitle)
	if err := engine.Ingest(ctx, rec); err != nil {
		t.Fatalf("second Ingest() error: %v", err)
	}

	if got := engine.FieldStats(record.FieldTitle); got != statsBefore {
		t.Errorf("stats changed on replay: %+v vs %+v", got, statsBefore)
	}
	if count, _ := store.Count(ctx); count != 1 {
		t.Errorf("store count = %d, want 1", count)
	}
}

// TestIngestSupersedes verifies re-ingesting a changed record with the same
// ID purges the old postings: the old title no longer matches and the new
// one does.
func TestIngestSupersedes(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	rec := testRecord("Quantum Annealing Methods")
	rec.FillID()
	if err := engine.Ingest(ctx, rec); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	updated := rec
	updated.Title = "Photonic Computing Methods"
	if err := engine.Ingest(ctx, updated); err != nil {
		t.Fatalf("re-Ingest() error: %v", err)
	}

	if got := engine.Postings(record.FieldTitle, "quantum"); got != nil {
		t.Errorf("stale title posting survived: %v", got)
	}
	if got := engine.Postings(record.FieldTitle, "photonic"); len(got) != 1 {
		t.Errorf("new title posting missing: %v", got)
	}
}

// TestIngestRejectsMalformed verifies records missing required fields fail
// with the malformed-record error and never reach the store.
func TestIngestRejectsMalformed(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	err := engine.Ingest(ctx, record.Record{Title: "No URL Here"})
	if !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Fatalf("want ErrMalformedRecord, got %v", err)
	}
	if count, _ := store.Count(ctx); count != 0 {
		t.Errorf("malformed record reached the store")
	}
}

// TestCheckpointAndReload verifies a checkpointed index survives an engine
// restart with postings and readiness intact.
func TestCheckpointAndReload(t *testing.T) {
	cfg := config.IndexerConfig{DataDir: t.TempDir(), BatchWorkers: 2}
	store := memory.New()
	engine, err := NewEngine(store, cfg)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	ctx := context.Background()

	if engine.Ready() {
		t.Fatal("engine ready before any build")
	}
	if err := engine.Ingest(ctx, testRecord("Replicated State Machines")); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if err := engine.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}
	if !engine.Ready() {
		t.Fatal("engine not ready after checkpoint")
	}

	reloaded, err := NewEngine(store, cfg)
	if err != nil {
		t.Fatalf("NewEngine() after checkpoint error: %v", err)
	}
	if !reloaded.Ready() {
		t.Fatal("reloaded engine not ready")
	}
	if got := reloaded.Postings(record.FieldTitle, "replicat"); len(got) != 1 {
		t.Errorf("postings lost across restart: %v", got)
	}
}

// TestCorruptSegmentStartsEmpty verifies a corrupted segment does not stop
// the engine from starting; it comes up empty and not ready.
func TestCorruptSegmentStartsEmpty(t *testing.T) {
	cfg := config.IndexerConfig{DataDir: t.TempDir(), BatchWorkers: 2}
	store := memory.New()
	engine, err := NewEngine(store, cfg)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	ctx := context.Background()
	if err := engine.Ingest(ctx, testRecord("Vector Clocks Revisited")); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if err := engine.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}

	if err := os.WriteFile(segment.Path(cfg.DataDir), []byte("garbage"), 0644); err != nil {
		t.Fatalf("corrupting segment: %v", err)
	}

	engine, err = NewEngine(store, cfg)
	if err != nil {
		t.Fatalf("NewEngine() with corrupt segment error: %v", err)
	}
	if engine.Ready() {
		t.Error("engine claims ready with a corrupt segment")
	}
	if got := engine.Postings(record.FieldTitle, "vector"); got != nil {
		t.Errorf("postings present after corrupt load: %v", got)
	}

	// Rebuild is the recovery path: the store still holds the record.
	if err := engine.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}
	if !engine.Ready() {
		t.Error("engine not ready after rebuild")
	}
	if got := engine.Postings(record.FieldTitle, "vector"); len(got) != 1 {
		t.Errorf("postings missing after rebuild: %v", got)
	}
}

// TestIngestBatchSkipsMalformed verifies batch ingest counts malformed
// records without aborting the batch.
func TestIngestBatchSkipsMalformed(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	seed := []record.Record{
		testRecord("Valid One"),
		{ID: "bad", Title: "No URL"},
		testRecord("Valid Two"),
	}
	for i := range seed {
		seed[i].FillID()
		if err := store.Upsert(ctx, seed[i]); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}

	it, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	ingested, err := engine.IngestBatch(ctx, it)
	if err != nil {
		t.Fatalf("IngestBatch() error: %v", err)
	}
	if ingested != 2 {
		t.Errorf("ingested = %d, want 2", ingested)
	}
	if got := engine.Postings(record.FieldTitle, "valid"); len(got) != 2 {
		t.Errorf("valid records not indexed: %v", got)
	}
}

// TestCloseCommitsFinalCheckpoint verifies that after cancelling the
// checkpoint loop, Close does not return until the final checkpoint is on
// disk, so a clean shutdown cannot drop records ingested since the last
// tick.
func TestCloseCommitsFinalCheckpoint(t *testing.T) {
	cfg := config.IndexerConfig{
		DataDir:            t.TempDir(),
		CheckpointInterval: time.Hour, // never ticks; only the final write can commit
		BatchWorkers:       2,
	}
	store := memory.New()
	engine, err := NewEngine(store, cfg)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine.StartCheckpointLoop(ctx)

	if err := engine.Ingest(ctx, testRecord("Write Ahead Logging")); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	cancel()
	if err := engine.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	snap, err := segment.Load(cfg.DataDir)
	if err != nil {
		t.Fatalf("no committed segment after Close: %v", err)
	}
	if snap.DocCount != 1 {
		t.Errorf("committed segment DocCount = %d, want 1", snap.DocCount)
	}
}

// TestCloseWithoutLoop verifies Close on an engine whose loop never started
// still writes a checkpoint.
func TestCloseWithoutLoop(t *testing.T) {
	engine, _ := newTestEngine(t)
	if err := engine.Ingest(context.Background(), testRecord("Standalone Build")); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !engine.Ready() {
		t.Error("engine not ready after Close checkpoint")
	}
}

// TestStats verifies the health report reflects readiness and the stored
// document count.
func TestStats(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	stats := engine.Stats(ctx)
	if stats.Ready || stats.Docs != 0 {
		t.Errorf("empty engine stats = %+v", stats)
	}

	if err := engine.Ingest(ctx, testRecord("Consensus Without Leaders")); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if err := engine.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint() error: %v", err)
	}

	stats = engine.Stats(ctx)
	if !stats.Ready || stats.Docs != 1 {
		t.Errorf("stats = %+v, want ready with 1 doc", stats)
	}
}
