package docstore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing feed: %v", err)
	}
	return path
}

// TestJSONLIterate verifies line-by-line decoding of a crawler export.
func TestJSONLIterate(t *testing.T) {
	path := writeFeed(t, `{"title":"One","url":"u1","year":2020}
{"title":"Two","url":"u2","year":2021}
`)
	it, err := OpenJSONL(path)
	if err != nil {
		t.Fatalf("OpenJSONL() error: %v", err)
	}
	defer it.Close()

	var titles []string
	for it.Next() {
		titles = append(titles, it.Record().Title)
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(titles) != 2 || titles[0] != "One" || titles[1] != "Two" {
		t.Fatalf("titles = %v", titles)
	}
	if it.Skipped() != 0 {
		t.Errorf("Skipped() = %d, want 0", it.Skipped())
	}
}

// TestJSONLSkipsBadLines verifies undecodable lines are counted and
// skipped without stopping the feed.
func TestJSONLSkipsBadLines(t *testing.T) {
	path := writeFeed(t, `{"title":"Good","url":"u1"}
not json at all
{"title":"Also Good","url":"u2"}

`)
	it, err := OpenJSONL(path)
	if err != nil {
		t.Fatalf("OpenJSONL() error: %v", err)
	}
	defer it.Close()

	count := 0
	for it.Next() {
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if count != 2 {
		t.Errorf("decoded %d records, want 2", count)
	}
	if it.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", it.Skipped())
	}
}

// TestJSONLMissingFile verifies a missing feed is an open error, not a
// silent empty iteration.
func TestJSONLMissingFile(t *testing.T) {
	if _, err := OpenJSONL(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Fatal("OpenJSONL() succeeded on missing file")
	}
}
