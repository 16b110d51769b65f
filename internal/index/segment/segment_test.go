package segment

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pubfinder/internal/index"
	apperrors "pubfinder/pkg/errors"
)

func buildSnapshot() index.Snapshot {
	ix := index.New()
	ix.Replace("doc-a", map[string][]string{
		"title":   {"graph", "search"},
		"authors": {"jane doe"},
	})
	ix.Replace("doc-b", map[string][]string{
		"title": {"graph"},
	})
	return ix.Snapshot()
}

// TestWriteLoadRoundTrip verifies a written segment loads back to an
// identical snapshot.
func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snap := buildSnapshot()

	if err := Write(dir, snap); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if !Exists(dir) {
		t.Fatal("Exists() = false after Write")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reflect.DeepEqual(loaded, snap) {
		t.Fatalf("loaded snapshot differs:\nwrote:  %+v\nloaded: %+v", snap, loaded)
	}
}

// TestWriteReplacesPrevious verifies a second checkpoint fully supersedes
// the first.
func TestWriteReplacesPrevious(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, buildSnapshot()); err != nil {
		t.Fatalf("first Write() error: %v", err)
	}

	ix := index.New()
	ix.Replace("doc-c", map[string][]string{"title": {"solo"}})
	second := ix.Snapshot()
	if err := Write(dir, second); err != nil {
		t.Fatalf("second Write() error: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.DocCount != 1 {
		t.Fatalf("DocCount = %d, want 1", loaded.DocCount)
	}
}

// TestLoadMissing verifies a missing segment reports not-exist rather than
// corruption.
func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("Load() succeeded on empty directory")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("want not-exist error, got %v", err)
	}
	if errors.Is(err, apperrors.ErrCorruptSegment) {
		t.Fatal("missing segment must not be reported as corrupt")
	}
}

// TestLoadCorruptBody verifies checksum validation catches a flipped byte
// in the body.
func TestLoadCorruptBody(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, buildSnapshot()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading segment: %v", err)
	}
	data[headerSize] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing corrupted segment: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, apperrors.ErrCorruptSegment) {
		t.Fatalf("want ErrCorruptSegment, got %v", err)
	}
}

// TestLoadBadMagic verifies a foreign file is rejected.
func TestLoadBadMagic(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, headerSize+footerSize)
	binary.LittleEndian.PutUint32(data[0:4], 0xDEADBEEF)
	if err := os.WriteFile(Path(dir), data, 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, apperrors.ErrCorruptSegment) {
		t.Fatalf("want ErrCorruptSegment, got %v", err)
	}
}

// TestLoadTruncated verifies a file shorter than the header is corrupt.
func TestLoadTruncated(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(Path(dir), []byte("pfx"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, apperrors.ErrCorruptSegment) {
		t.Fatalf("want ErrCorruptSegment, got %v", err)
	}
}

// TestLoadVersionMismatch verifies an unsupported format version is
// rejected before the body is parsed.
func TestLoadVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, buildSnapshot()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading segment: %v", err)
	}
	binary.LittleEndian.PutUint32(data[4:8], FormatVersion+1)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing modified segment: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, apperrors.ErrCorruptSegment) {
		t.Fatalf("want ErrCorruptSegment, got %v", err)
	}
}

// TestWriteLeavesNoTempFile verifies the temp file is renamed away on
// success.
func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, buildSnapshot()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file %s left behind", e.Name())
		}
	}
}

// TestRemove verifies removal of present and absent segments.
func TestRemove(t *testing.T) {
	dir := t.TempDir()
	if err := Remove(dir); err != nil {
		t.Fatalf("Remove() on missing segment: %v", err)
	}
	if err := Write(dir, buildSnapshot()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := Remove(dir); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if Exists(dir) {
		t.Fatal("segment still exists after Remove")
	}
}
