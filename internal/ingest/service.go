// Package ingest accepts publication records over HTTP and hands them to
// the indexing pipeline via Kafka. It is the write-side boundary: records
// are validated and assigned stable IDs here, then the indexer consumes
// them asynchronously.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pubfinder/internal/docstore"
	"pubfinder/internal/record"
	apperrors "pubfinder/pkg/errors"
	"pubfinder/pkg/kafka"
	"pubfinder/pkg/logger"
	"pubfinder/pkg/metrics"
)

// Request body caps. Bulk payloads carry whole crawler exports, so their
// limit is correspondingly larger.
const (
	maxBodyBytes     = 1 << 20
	maxBulkBodyBytes = 32 << 20
)

// Publisher is the slice of the Kafka producer the service needs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Service validates incoming publications and publishes them to the
// ingest topic. When a store is configured, records are also written
// through so the searcher can hydrate them before the indexer catches up.
type Service struct {
	producer Publisher
	store    docstore.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Service. store and m may be nil.
func New(producer Publisher, store docstore.Store, m *metrics.Metrics) *Service {
	return &Service{
		producer: producer,
		store:    store,
		metrics:  m,
		logger:   slog.Default().With("component", "ingest"),
	}
}

// SubmitResponse is returned for accepted submissions.
type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Submit handles POST /api/publications. The record is validated, given
// its content-derived ID, and published; indexing happens asynchronously,
// so the response is 202 Accepted.
func (s *Service) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var rec record.Record
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	rec.FillID()
	if err := rec.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.RecordsSkippedTotal.Inc()
		}
		writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	if s.store != nil {
		if err := s.store.Upsert(ctx, rec); err != nil {
			log.Error("write-through to store failed", "doc_id", rec.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to persist publication")
			return
		}
	}

	if err := s.producer.Publish(ctx, kafka.Event{Key: rec.ID, Value: rec}); err != nil {
		log.Error("failed to publish record", "doc_id", rec.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue publication for indexing")
		return
	}

	log.Info("publication accepted", "doc_id", rec.ID, "title", rec.Title)
	writeJSON(w, http.StatusAccepted, SubmitResponse{ID: rec.ID, Status: "accepted"})
}

// BulkResponse summarises a bulk submission.
type BulkResponse struct {
	Accepted int `json:"accepted"`
	Skipped  int `json:"skipped"`
}

// SubmitBulk handles POST /api/publications/bulk with a JSON array body.
// Malformed records are skipped and counted rather than failing the batch.
func (s *Service) SubmitBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var recs []record.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBulkBodyBytes)).Decode(&recs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	valid := make([]record.Record, 0, len(recs))
	skipped := 0
	for i := range recs {
		rec := &recs[i]
		rec.FillID()
		if err := rec.Validate(); err != nil {
			skipped++
			log.Warn("skipping malformed record", "position", i, "error", err)
			continue
		}
		valid = append(valid, *rec)
	}
	if s.metrics != nil && skipped > 0 {
		s.metrics.RecordsSkippedTotal.Add(float64(skipped))
	}

	if s.store != nil && len(valid) > 0 {
		if err := upsertAll(ctx, s.store, valid); err != nil {
			log.Error("write-through to store failed", "count", len(valid), "error", err)
			writeError(w, http.StatusInternalServerError, "failed to persist publications")
			return
		}
	}

	events := make([]kafka.Event, 0, len(valid))
	for _, rec := range valid {
		events = append(events, kafka.Event{Key: rec.ID, Value: rec})
	}

	if len(events) > 0 {
		if err := s.producer.PublishBatch(ctx, events); err != nil {
			log.Error("failed to publish batch", "count", len(events), "error", err)
			writeError(w, http.StatusInternalServerError, "failed to queue publications for indexing")
			return
		}
	}

	log.Info("bulk submission accepted", "accepted", len(events), "skipped", skipped)
	writeJSON(w, http.StatusAccepted, BulkResponse{Accepted: len(events), Skipped: skipped})
}

// upsertAll writes a batch through the store, transactionally when the
// store supports it.
func upsertAll(ctx context.Context, store docstore.Store, recs []record.Record) error {
	if batch, ok := store.(docstore.BatchUpserter); ok {
		return batch.UpsertBatch(ctx, recs)
	}
	for _, rec := range recs {
		if err := store.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Default().Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
