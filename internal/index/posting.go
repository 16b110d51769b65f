package index

// Posting links a term to a document and the term's frequency within that
// document's field.
type Posting struct {
	DocID     string `json:"d"`
	Frequency int    `json:"f"`
}

// PostingList is the set of postings for one (field, term) pair, sorted by
// document ID.
type PostingList []Posting

// Stats holds the per-field aggregates needed by BM25F length
// normalisation. They always reflect the committed postings content.
type Stats struct {
	DocCount    int
	TotalLength int64
	AvgLength   float64
}

// TermEntry pairs a term with its postings, used in snapshots.
type TermEntry struct {
	Term     string      `json:"t"`
	Postings PostingList `json:"p"`
}

// FieldSnapshot is the persisted form of one field's postings and length
// statistics.
type FieldSnapshot struct {
	Field      string         `json:"field"`
	Terms      []TermEntry    `json:"terms"`
	DocLengths map[string]int `json:"doc_lengths"`
}

// Snapshot is the full, value-form copy of the index written to and read
// from segment files. Field, term, and posting order is deterministic.
type Snapshot struct {
	Fields   []FieldSnapshot `json:"fields"`
	DocCount int             `json:"doc_count"`
}
