// Package handler exposes the search HTTP API: /api/search with query and
// sort parameters, /api/stats for index health, and cache management
// endpoints. Pagination and presentation belong to the UI layer; this
// handler returns ranked JSON.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pubfinder/internal/indexer"
	"pubfinder/internal/searcher/cache"
	"pubfinder/internal/searcher/events"
	"pubfinder/internal/searcher/executor"
	apperrors "pubfinder/pkg/errors"
	"pubfinder/pkg/logger"
	"pubfinder/pkg/metrics"
	"pubfinder/pkg/middleware"
)

// SearchExecutor is the slice of the executor the handler needs.
type SearchExecutor interface {
	Search(ctx context.Context, query string, sortKey executor.Sort, limit int) (*executor.Result, error)
}

// StatsProvider reports index health.
type StatsProvider interface {
	Stats(ctx context.Context) indexer.Stats
}

// Handler serves the search API.
type Handler struct {
	executor     SearchExecutor
	stats        StatsProvider
	cache        *cache.QueryCache
	collector    *events.Collector
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New creates a Handler. cache, collector, and m may be nil to disable the
// corresponding feature.
func New(exec SearchExecutor, stats StatsProvider, queryCache *cache.QueryCache, collector *events.Collector, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		stats:        stats,
		cache:        queryCache,
		collector:    collector,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/search?q=&sort=&limit=. An empty q returns an
// empty result list with status 200; an unknown sort is a client error.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	sortKey, err := executor.ParseSort(strings.ToLower(r.URL.Query().Get("sort")))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	if query == "" {
		h.writeJSON(w, http.StatusOK, &executor.Result{
			Query:   query,
			Sort:    sortKey,
			Results: []executor.ScoredDocument{},
		})
		return
	}

	var result *executor.Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, sortKey, limit, func() (*executor.Result, error) {
			return h.executor.Search(ctx, query, sortKey, limit)
		})
	} else {
		result, err = h.executor.Search(ctx, query, sortKey, limit)
	}
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.observeQuery("error", cacheHit, start, 0)
		status := apperrors.HTTPStatusCode(err)
		if status == http.StatusInternalServerError {
			h.writeError(w, status, "search failed")
		} else {
			h.writeError(w, status, err.Error())
		}
		return
	}

	latency := time.Since(start)
	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.observeQuery(resultType, cacheHit, start, len(result.Results))

	log.Info("search completed",
		"query", query,
		"sort", sortKey,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.collector != nil {
		h.collector.Track(events.SearchEvent{
			Query:     query,
			Sort:      string(sortKey),
			TotalHits: result.TotalHits,
			Returned:  len(result.Results),
			LatencyMs: latency.Milliseconds(),
			CacheHit:  cacheHit,
			RequestID: middleware.GetRequestID(ctx),
			Timestamp: time.Now().UTC(),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

// Stats handles GET /api/stats. It never fails: an unbuilt index reports
// ready=false with zero documents.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.stats.Stats(r.Context()))
}

// CacheStats handles GET /api/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) observeQuery(resultType string, cacheHit bool, start time.Time, returned int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	cacheStatus := "none"
	if h.cache != nil {
		if cacheHit {
			cacheStatus = "hit"
			h.metrics.CacheHitsTotal.Inc()
		} else {
			cacheStatus = "miss"
			h.metrics.CacheMissesTotal.Inc()
		}
	}
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	h.metrics.SearchResultsCount.Observe(float64(returned))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
