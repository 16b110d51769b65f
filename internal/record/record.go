// Package record defines the canonical publication record consumed by the
// index builder, the scored-field schema, and the deterministic document ID
// derivation.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	apperrors "pubfinder/pkg/errors"
)

// Scored field names. Each scored field is tokenized independently and
// carries its own boost weight at query time. Year, URL, author links, and
// crawl time are stored but never full-text scored.
const (
	FieldTitle      = "title"
	FieldTitleNgram = "title_ngram"
	FieldAuthors    = "authors"
	FieldType       = "publication_type"
)

// ScoredFields returns the fields that participate in BM25F scoring, in
// deterministic order.
func ScoredFields() []string {
	return []string{FieldTitle, FieldTitleNgram, FieldAuthors, FieldType}
}

// Record is a single publication as produced by the acquisition side.
// Year 0 means unknown; JSON null is tolerated on decode. AuthorLinks is
// index-aligned with Authors and may be shorter or empty.
type Record struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	AuthorLinks     []string  `json:"author_links"`
	Year            int       `json:"year"`
	URL             string    `json:"url"`
	PublicationType string    `json:"publication_type"`
	CrawledAt       time.Time `json:"crawled_at"`
}

// StableID derives the document ID from title and URL, so re-crawling the
// same publication always maps to the same ID.
func StableID(title, url string) string {
	sum := sha256.Sum256([]byte(title + url))
	return hex.EncodeToString(sum[:])
}

// FillID sets ID from the title and URL when the producer left it empty.
func (r *Record) FillID() {
	if r.ID == "" {
		r.ID = StableID(r.Title, r.URL)
	}
}

// Validate checks the required fields. A record missing id, title, or url
// is malformed and must be rejected at the ingestion boundary.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return apperrors.New(apperrors.ErrMalformedRecord, 400, "missing id")
	case strings.TrimSpace(r.Title) == "":
		return apperrors.New(apperrors.ErrMalformedRecord, 400, "missing title")
	case strings.TrimSpace(r.URL) == "":
		return apperrors.New(apperrors.ErrMalformedRecord, 400, "missing url")
	}
	return nil
}

// FieldText returns the raw text backing a scored field. The n-gram field
// reads the title; the authors field joins names with commas so the keyword
// analyzer can split them back apart.
func (r Record) FieldText(field string) string {
	switch field {
	case FieldTitle, FieldTitleNgram:
		return r.Title
	case FieldAuthors:
		return strings.Join(r.Authors, ", ")
	case FieldType:
		return r.PublicationType
	default:
		return ""
	}
}
