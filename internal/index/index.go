// Package index implements the multi-field inverted index. Postings are
// partitioned by field so each field carries its own length statistics for
// BM25F. All mutations for one document happen under a single write lock
// acquisition, so concurrent readers observe either the pre-update or the
// fully post-update state, never a partially purged one.
package index

import (
	"sort"
	"sync"
)

type fieldData struct {
	terms    map[string]map[string]*Posting // term -> docID -> posting
	docLen   map[string]int                 // docID -> token count
	totalLen int64
}

func newFieldData() *fieldData {
	return &fieldData{
		terms:  make(map[string]map[string]*Posting),
		docLen: make(map[string]int),
	}
}

// Index is the in-memory inverted index. Single writer, many readers.
type Index struct {
	mu     sync.RWMutex
	fields map[string]*fieldData
	// docTerms records which terms each document contributed per field,
	// so removal never scans the whole dictionary.
	docTerms map[string]map[string][]string
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		fields:   make(map[string]*fieldData),
		docTerms: make(map[string]map[string][]string),
	}
}

// Replace atomically removes every posting the document currently has and
// adds postings for the given per-field term sequences. Fields with empty
// term sequences are skipped. This is the idempotent upsert primitive:
// replaying the same input leaves the index unchanged.
func (ix *Index) Replace(docID string, fields map[string][]string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(docID)
	for field, terms := range fields {
		if len(terms) == 0 {
			continue
		}
		ix.addLocked(docID, field, terms)
	}
}

// AddTerms sets the document's postings for one field. Existing postings for
// that (document, field) pair are replaced, not merged.
func (ix *Index) AddTerms(docID, field string, terms []string) {
	if len(terms) == 0 {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeFieldLocked(docID, field)
	ix.addLocked(docID, field, terms)
}

// RemoveDocument purges all postings for the document across all fields and
// updates length statistics accordingly. Removing an unknown document is a
// no-op.
func (ix *Index) RemoveDocument(docID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(docID)
}

// Postings returns the current postings list for (field, term), sorted by
// document ID. An absent term yields nil, not an error.
func (ix *Index) Postings(field, term string) PostingList {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	fd, ok := ix.fields[field]
	if !ok {
		return nil
	}
	docs, ok := fd.terms[term]
	if !ok {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, p := range docs {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// FieldStats returns the per-field aggregates for BM25F.
func (ix *Index) FieldStats(field string) Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	fd, ok := ix.fields[field]
	if !ok {
		return Stats{}
	}
	stats := Stats{
		DocCount:    len(fd.docLen),
		TotalLength: fd.totalLen,
	}
	if stats.DocCount > 0 {
		stats.AvgLength = float64(fd.totalLen) / float64(stats.DocCount)
	}
	return stats
}

// DocLength returns the document's token count in the given field, or 0.
func (ix *Index) DocLength(field, docID string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if fd, ok := ix.fields[field]; ok {
		return fd.docLen[docID]
	}
	return 0
}

// DocCount returns the number of documents with at least one posting.
func (ix *Index) DocCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docTerms)
}

// Reset drops all postings and statistics.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.fields = make(map[string]*fieldData)
	ix.docTerms = make(map[string]map[string][]string)
}

// Snapshot copies the index into its deterministic value form for segment
// persistence: fields, terms, and postings all sorted.
func (ix *Index) Snapshot() Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	snap := Snapshot{
		Fields:   make([]FieldSnapshot, 0, len(ix.fields)),
		DocCount: len(ix.docTerms),
	}
	for field, fd := range ix.fields {
		fs := FieldSnapshot{
			Field:      field,
			Terms:      make([]TermEntry, 0, len(fd.terms)),
			DocLengths: make(map[string]int, len(fd.docLen)),
		}
		for docID, n := range fd.docLen {
			fs.DocLengths[docID] = n
		}
		for term, docs := range fd.terms {
			postings := make(PostingList, 0, len(docs))
			for _, p := range docs {
				postings = append(postings, *p)
			}
			sort.Slice(postings, func(i, j int) bool {
				return postings[i].DocID < postings[j].DocID
			})
			fs.Terms = append(fs.Terms, TermEntry{Term: term, Postings: postings})
		}
		sort.Slice(fs.Terms, func(i, j int) bool {
			return fs.Terms[i].Term < fs.Terms[j].Term
		})
		snap.Fields = append(snap.Fields, fs)
	}
	sort.Slice(snap.Fields, func(i, j int) bool {
		return snap.Fields[i].Field < snap.Fields[j].Field
	})
	return snap
}

// Restore replaces the index contents with a previously captured snapshot.
func (ix *Index) Restore(snap Snapshot) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.fields = make(map[string]*fieldData, len(snap.Fields))
	ix.docTerms = make(map[string]map[string][]string)
	for _, fs := range snap.Fields {
		fd := newFieldData()
		for docID, n := range fs.DocLengths {
			fd.docLen[docID] = n
			fd.totalLen += int64(n)
		}
		for _, entry := range fs.Terms {
			docs := make(map[string]*Posting, len(entry.Postings))
			for _, p := range entry.Postings {
				posting := p
				docs[p.DocID] = &posting
				ix.trackTermLocked(p.DocID, fs.Field, entry.Term)
			}
			fd.terms[entry.Term] = docs
		}
		ix.fields[fs.Field] = fd
	}
}

func (ix *Index) addLocked(docID, field string, terms []string) {
	fd, ok := ix.fields[field]
	if !ok {
		fd = newFieldData()
		ix.fields[field] = fd
	}

	for _, term := range terms {
		docs, ok := fd.terms[term]
		if !ok {
			docs = make(map[string]*Posting)
			fd.terms[term] = docs
		}
		p, ok := docs[docID]
		if !ok {
			p = &Posting{DocID: docID}
			docs[docID] = p
			ix.trackTermLocked(docID, field, term)
		}
		p.Frequency++
	}
	fd.docLen[docID] = len(terms)
	fd.totalLen += int64(len(terms))
}

func (ix *Index) removeLocked(docID string) {
	byField, ok := ix.docTerms[docID]
	if !ok {
		return
	}
	for field := range byField {
		ix.removeFieldLocked(docID, field)
	}
	delete(ix.docTerms, docID)
}

func (ix *Index) removeFieldLocked(docID, field string) {
	byField, ok := ix.docTerms[docID]
	if !ok {
		return
	}
	terms, ok := byField[field]
	if !ok {
		return
	}
	fd := ix.fields[field]
	for _, term := range terms {
		if docs, ok := fd.terms[term]; ok {
			delete(docs, docID)
			if len(docs) == 0 {
				delete(fd.terms, term)
			}
		}
	}
	fd.totalLen -= int64(fd.docLen[docID])
	delete(fd.docLen, docID)

	delete(byField, field)
	if len(byField) == 0 {
		delete(ix.docTerms, docID)
	}
}

func (ix *Index) trackTermLocked(docID, field, term string) {
	byField, ok := ix.docTerms[docID]
	if !ok {
		byField = make(map[string][]string)
		ix.docTerms[docID] = byField
	}
	byField[field] = append(byField[field], term)
}
