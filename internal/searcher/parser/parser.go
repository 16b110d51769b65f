// Package parser turns a raw query string into per-field term sets using
// the same analyzers applied at index time. Symmetry is the invariant: a
// term that would not survive indexing never becomes a query term.
package parser

import (
	"pubfinder/internal/analysis"
	"pubfinder/internal/record"
)

// Plan holds the analyzed query: for each scored field, the deduplicated
// terms to look up.
type Plan struct {
	Raw        string
	FieldTerms map[string][]string
}

// Empty reports whether the query analyzed to nothing in every field
// (empty input, or all stop-words).
func (p Plan) Empty() bool {
	return len(p.FieldTerms) == 0
}

// Parse analyzes the query once per scored field. Duplicate terms within a
// field are collapsed so each (field, term) pair is scored once.
func Parse(query string) Plan {
	plan := Plan{
		Raw:        query,
		FieldTerms: make(map[string][]string),
	}
	for _, field := range record.ScoredFields() {
		terms := analysis.Terms(field, query)
		if len(terms) == 0 {
			continue
		}
		plan.FieldTerms[field] = dedupe(terms)
	}
	return plan
}

func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	result := terms[:0]
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		result = append(result, term)
	}
	return result
}
