// Package indexer orchestrates ingest: it upserts records into the
// publication store, analyzes the scored fields, and applies
// remove-then-add updates to the inverted index as one logical unit. It
// also owns segment checkpointing and exposes the index health stats.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"pubfinder/internal/analysis"
	"pubfinder/internal/docstore"
	"pubfinder/internal/index"
	"pubfinder/internal/index/segment"
	"pubfinder/internal/record"
	"pubfinder/pkg/config"
	"pubfinder/pkg/metrics"
)

// Stats is the index health report served by the stats endpoint. Ready is
// true only once the index has been built (checkpointed) or loaded at least
// once.
type Stats struct {
	Ready bool `json:"ready"`
	Docs  int  `json:"docs"`
}

// Engine is the index builder: single writer over the inverted index,
// paired with the publication store. Search readers may run concurrently
// with ingest.
type Engine struct {
	store   docstore.Store
	idx     *index.Index
	cfg     config.IndexerConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	ready    atomic.Bool
	loopDone chan struct{}
}

// NewEngine creates an Engine and loads the committed segment from the data
// directory if one exists. A corrupt segment is logged and left on disk;
// the engine starts empty and Rebuild is the recovery path. A missing
// segment is not an error: the engine simply reports not-ready until the
// first checkpoint.
func NewEngine(store docstore.Store, cfg config.IndexerConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		store:  store,
		idx:    index.New(),
		cfg:    cfg,
		logger: slog.Default().With("component", "indexer"),
	}

	snap, err := segment.Load(cfg.DataDir)
	switch {
	case err == nil:
		e.idx.Restore(snap)
		e.ready.Store(true)
		e.logger.Info("segment loaded",
			"data_dir", cfg.DataDir,
			"docs", snap.DocCount,
		)
	case os.IsNotExist(err):
		e.logger.Info("no committed segment, starting empty", "data_dir", cfg.DataDir)
	default:
		e.logger.Error("segment failed validation, starting empty; run a rebuild",
			"data_dir", cfg.DataDir,
			"error", err,
		)
	}
	return e, nil
}

// SetMetrics attaches Prometheus collectors. Optional; a nil receiver field
// disables instrumentation.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Ingest validates the record, upserts it into the store, and replaces its
// postings across all scored fields. Re-running Ingest with an unchanged
// record leaves both store and index content-identical; a changed record
// with the same ID fully supersedes the previous version.
func (e *Engine) Ingest(ctx context.Context, rec record.Record) error {
	rec.FillID()
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := e.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.ID, err)
	}
	e.idx.Replace(rec.ID, analyzeRecord(rec))

	if e.metrics != nil {
		e.metrics.DocsIngestedTotal.Inc()
		e.metrics.IndexDocCount.Set(float64(e.idx.DocCount()))
	}
	e.logger.Debug("record ingested", "doc_id", rec.ID, "title", rec.Title)
	return nil
}

// IngestBatch drains the iterator, analyzing records on a worker pool and
// merging results into the index sequentially. Malformed records are
// skipped and counted; the batch continues. Returns the number of records
// ingested.
func (e *Engine) IngestBatch(ctx context.Context, it docstore.Iterator) (int, error) {
	defer it.Close()

	workers := e.cfg.BatchWorkers
	if workers < 1 {
		workers = 1
	}

	type analyzed struct {
		rec    record.Record
		fields map[string][]string
	}

	recs := make(chan record.Record, workers)
	results := make(chan analyzed, workers)
	var skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(recs)
		for it.Next() {
			rec := it.Record()
			rec.FillID()
			if err := rec.Validate(); err != nil {
				skipped.Add(1)
				e.logger.Warn("skipping malformed record", "doc_id", rec.ID, "error", err)
				continue
			}
			select {
			case recs <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return it.Err()
	})

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for rec := range recs {
				a := analyzed{rec: rec, fields: analyzeRecord(rec)}
				select {
				case results <- a:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	ingested := 0
	var mergeErr error
	for a := range results {
		if mergeErr != nil {
			continue // drain so the workers can finish
		}
		if err := e.store.Upsert(ctx, a.rec); err != nil {
			mergeErr = fmt.Errorf("upserting record %s: %w", a.rec.ID, err)
			continue
		}
		e.idx.Replace(a.rec.ID, a.fields)
		ingested++
	}
	if err := g.Wait(); err != nil && mergeErr == nil {
		mergeErr = err
	}

	if e.metrics != nil {
		e.metrics.DocsIngestedTotal.Add(float64(ingested))
		e.metrics.RecordsSkippedTotal.Add(float64(skipped.Load()))
		e.metrics.IndexDocCount.Set(float64(e.idx.DocCount()))
	}
	e.logger.Info("batch ingested",
		"ingested", ingested,
		"skipped", skipped.Load(),
	)
	return ingested, mergeErr
}

// Checkpoint flushes the current index state to the segment file. The write
// is all-or-nothing: a crash mid-checkpoint leaves the previous segment
// untouched.
func (e *Engine) Checkpoint() error {
	snap := e.idx.Snapshot()
	if err := segment.Write(e.cfg.DataDir, snap); err != nil {
		if e.metrics != nil {
			e.metrics.CheckpointsTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("writing segment: %w", err)
	}
	e.ready.Store(true)
	if e.metrics != nil {
		e.metrics.CheckpointsTotal.WithLabelValues("ok").Inc()
	}
	e.logger.Info("checkpoint written",
		"data_dir", e.cfg.DataDir,
		"docs", snap.DocCount,
	)
	return nil
}

// Rebuild discards the in-memory index and re-indexes every record in the
// store, then checkpoints. This is the recovery path for a corrupt segment.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.logger.Info("rebuilding index from store")
	e.idx.Reset()
	it, err := e.store.All(ctx)
	if err != nil {
		return fmt.Errorf("listing records for rebuild: %w", err)
	}
	if _, err := e.IngestBatch(ctx, it); err != nil {
		return fmt.Errorf("re-indexing records: %w", err)
	}
	return e.Checkpoint()
}

// StartCheckpointLoop checkpoints on the configured interval until ctx is
// cancelled, then performs a final checkpoint. Callers must Close the
// engine on shutdown to wait for that final write.
func (e *Engine) StartCheckpointLoop(ctx context.Context) {
	interval := e.cfg.CheckpointInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	e.loopDone = make(chan struct{})
	go func() {
		defer close(e.loopDone)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("checkpoint loop stopping, writing final checkpoint")
				if err := e.Checkpoint(); err != nil {
					e.logger.Error("final checkpoint failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Checkpoint(); err != nil {
					e.logger.Error("periodic checkpoint failed", "error", err)
				}
			}
		}
	}()
}

// Close waits for a running checkpoint loop to stop and writes a final
// checkpoint, so records ingested since the last tick are committed before
// the process exits.
func (e *Engine) Close() error {
	if e.loopDone != nil {
		<-e.loopDone
	}
	if err := e.Checkpoint(); err != nil {
		e.logger.Error("final checkpoint on close failed", "error", err)
		return err
	}
	return nil
}

// Postings exposes the index postings for the query engine.
func (e *Engine) Postings(field, term string) index.PostingList {
	return e.idx.Postings(field, term)
}

// FieldStats exposes per-field aggregates for the query engine.
func (e *Engine) FieldStats(field string) index.Stats {
	return e.idx.FieldStats(field)
}

// DocLength exposes the per-field document length for the query engine.
func (e *Engine) DocLength(field, docID string) int {
	return e.idx.DocLength(field, docID)
}

// Ready reports whether the index has been built or loaded at least once.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// Stats returns the index health report. It never fails: when the index
// has not been built and the store is unreachable, it reports not-ready
// with zero documents.
func (e *Engine) Stats(ctx context.Context) Stats {
	docs, err := e.store.Count(ctx)
	if err != nil {
		e.logger.Error("counting stored records", "error", err)
		docs = 0
	}
	return Stats{Ready: e.ready.Load(), Docs: docs}
}

// analyzeRecord tokenizes every scored field, dropping fields that analyze
// to nothing.
func analyzeRecord(rec record.Record) map[string][]string {
	fields := make(map[string][]string, len(record.ScoredFields()))
	for _, field := range record.ScoredFields() {
		terms := analysis.Terms(field, rec.FieldText(field))
		if len(terms) == 0 {
			continue
		}
		fields[field] = terms
	}
	return fields
}
