// Package ranker computes BM25F relevance scores. Each matching
// (field, term) pair contributes
//
//	boost(field) * idf(term, field) * tf*(k1+1) / (tf + k1*(1-b+b*docLen/avgLen))
//
// and a document's score is the sum over all matching pairs. The boost is a
// multiplicative per-field weight; k1 saturates term frequency and b
// controls length normalisation. All three come from configuration rather
// than constants so ranking can be tuned without code changes.
package ranker

import (
	"math"

	"pubfinder/internal/index"
	"pubfinder/pkg/config"
)

// Match is one (field, term) pair present in the query together with its
// current postings list.
type Match struct {
	Field    string
	Term     string
	Postings index.PostingList
}

// IndexStats supplies the per-field aggregates and per-document field
// lengths the formula needs. The inverted index satisfies it.
type IndexStats interface {
	FieldStats(field string) index.Stats
	DocLength(field, docID string) int
}

// Score computes the BM25F score for every document appearing in at least
// one match. Documents with no matching terms never enter the map, so a
// zero score is never reported.
func Score(matches []Match, stats IndexStats, cfg config.SearchConfig) map[string]float64 {
	scores := make(map[string]float64)
	for _, m := range matches {
		fs := stats.FieldStats(m.Field)
		if fs.DocCount == 0 || fs.AvgLength == 0 {
			continue
		}
		idf := computeIDF(fs.DocCount, len(m.Postings))
		boost := cfg.Boost(m.Field)
		for _, posting := range m.Postings {
			docLen := stats.DocLength(m.Field, posting.DocID)
			tfNorm := computeTFNorm(
				float64(posting.Frequency),
				float64(docLen),
				fs.AvgLength,
				cfg.K1, cfg.B,
			)
			scores[posting.DocID] += boost * idf * tfNorm
		}
	}
	for docID, score := range scores {
		scores[docID] = math.Round(score*10000) / 10000
	}
	return scores
}

// computeIDF uses the +0.5-smoothed BM25 form, which stays positive even
// when every document in the field contains the term.
func computeIDF(docCount, docFreq int) float64 {
	numerator := float64(docCount) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq, docLength, avgLength, k1, b float64) float64 {
	lengthRatio := docLength / avgLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
