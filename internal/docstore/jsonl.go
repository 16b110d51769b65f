package docstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"pubfinder/internal/record"
)

// JSONLIterator streams records from an append-only JSON Lines log, the
// format the acquisition side writes. Lines that fail to decode are
// skipped and counted rather than aborting the batch.
type JSONLIterator struct {
	closer  io.Closer
	scanner *bufio.Scanner
	current record.Record
	skipped int
	err     error
}

// OpenJSONL opens a JSONL record log for iteration.
func OpenJSONL(path string) (*JSONLIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening record log %s: %w", path, err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &JSONLIterator{closer: f, scanner: scanner}, nil
}

// Next advances to the next decodable record.
func (it *JSONLIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.scanner.Scan() {
		line := strings.TrimSpace(it.scanner.Text())
		if line == "" {
			continue
		}
		var rec record.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			it.skipped++
			continue
		}
		it.current = rec
		return true
	}
	it.err = it.scanner.Err()
	return false
}

// Record returns the record at the current position.
func (it *JSONLIterator) Record() record.Record { return it.current }

// Err returns the first read error encountered, if any.
func (it *JSONLIterator) Err() error { return it.err }

// Skipped returns how many undecodable lines were passed over.
func (it *JSONLIterator) Skipped() int { return it.skipped }

// Close closes the underlying file.
func (it *JSONLIterator) Close() error { return it.closer.Close() }
