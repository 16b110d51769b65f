// Package executor runs search queries end to end: parse, candidate
// retrieval, BM25F scoring, sort strategy, and stored-record hydration.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"pubfinder/internal/docstore"
	"pubfinder/internal/indexer"
	"pubfinder/internal/record"
	"pubfinder/internal/searcher/parser"
	"pubfinder/internal/searcher/ranker"
	"pubfinder/pkg/config"
	apperrors "pubfinder/pkg/errors"
)

// Sort selects the result ordering.
type Sort string

const (
	// SortRelevance orders by descending score, ties broken by ID.
	SortRelevance Sort = "relevance"
	// SortYear orders by descending year; records without a year sort
	// last, ties broken by descending score.
	SortYear Sort = "year"
	// SortRecent orders by descending crawl time, ties broken by
	// descending score.
	SortRecent Sort = "recent"
)

// ParseSort validates a sort key from the API layer. The empty string
// defaults to relevance; anything else unknown is an invalid argument.
func ParseSort(s string) (Sort, error) {
	switch Sort(s) {
	case "", SortRelevance:
		return SortRelevance, nil
	case SortYear:
		return SortYear, nil
	case SortRecent:
		return SortRecent, nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidArgument, 400, "unknown sort %q", s)
	}
}

// ScoredDocument pairs a stored record with its relevance score.
type ScoredDocument struct {
	record.Record
	Score float64 `json:"score"`
}

// Result is the response body for one search.
type Result struct {
	Query     string           `json:"query"`
	Sort      Sort             `json:"sort"`
	TotalHits int              `json:"total_hits"`
	Results   []ScoredDocument `json:"results"`
}

// Executor answers queries against a built index and the publication store.
type Executor struct {
	engine *indexer.Engine
	store  docstore.Store
	cfg    config.SearchConfig
	logger *slog.Logger
}

// New creates an Executor.
func New(engine *indexer.Engine, store docstore.Store, cfg config.SearchConfig) *Executor {
	return &Executor{
		engine: engine,
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Search runs a query. An empty query, or one that analyzes to nothing,
// yields an empty result rather than an error. Searching before the index
// has ever been built fails with ErrIndexUnavailable.
func (e *Executor) Search(ctx context.Context, query string, sortKey Sort, limit int) (*Result, error) {
	result := &Result{
		Query:   query,
		Sort:    sortKey,
		Results: []ScoredDocument{},
	}

	plan := parser.Parse(query)
	if plan.Empty() {
		return result, nil
	}
	if !e.engine.Ready() {
		return nil, apperrors.New(apperrors.ErrIndexUnavailable, 503, "index has not been built")
	}

	matches := make([]ranker.Match, 0)
	for field, terms := range plan.FieldTerms {
		for _, term := range terms {
			postings := e.engine.Postings(field, term)
			if len(postings) == 0 {
				continue
			}
			matches = append(matches, ranker.Match{Field: field, Term: term, Postings: postings})
		}
	}

	scores := ranker.Score(matches, e.engine, e.cfg)
	if len(scores) == 0 {
		return result, nil
	}

	docs := make([]ScoredDocument, 0, len(scores))
	for docID, score := range scores {
		rec, err := e.store.Get(ctx, docID)
		if err != nil {
			if errors.Is(err, apperrors.ErrDocumentNotFound) {
				// Postings can briefly outlive a deleted record.
				e.logger.Warn("indexed document missing from store", "doc_id", docID)
				continue
			}
			return nil, fmt.Errorf("loading document %s: %w", docID, err)
		}
		docs = append(docs, ScoredDocument{Record: rec, Score: score})
	}
	// Count only hydrated candidates so TotalHits matches what is rankable.
	result.TotalHits = len(docs)

	orderResults(docs, sortKey)

	if limit <= 0 || limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}
	result.Results = docs

	e.logger.Info("query executed",
		"query", query,
		"sort", sortKey,
		"total_hits", result.TotalHits,
		"returned", len(docs),
	)
	return result, nil
}

// orderResults applies the sort strategy. Every strategy ends with an ID
// tie-break so repeated searches over identical state return identical
// orderings.
func orderResults(docs []ScoredDocument, sortKey Sort) {
	switch sortKey {
	case SortYear:
		sort.Slice(docs, func(i, j int) bool {
			yi, yj := docs[i].Year, docs[j].Year
			if yi != yj {
				if yi == 0 {
					return false
				}
				if yj == 0 {
					return true
				}
				return yi > yj
			}
			if docs[i].Score != docs[j].Score {
				return docs[i].Score > docs[j].Score
			}
			return docs[i].ID < docs[j].ID
		})
	case SortRecent:
		sort.Slice(docs, func(i, j int) bool {
			if !docs[i].CrawledAt.Equal(docs[j].CrawledAt) {
				return docs[i].CrawledAt.After(docs[j].CrawledAt)
			}
			if docs[i].Score != docs[j].Score {
				return docs[i].Score > docs[j].Score
			}
			return docs[i].ID < docs[j].ID
		})
	default:
		sort.Slice(docs, func(i, j int) bool {
			if docs[i].Score != docs[j].Score {
				return docs[i].Score > docs[j].Score
			}
			return docs[i].ID < docs[j].ID
		})
	}
}
