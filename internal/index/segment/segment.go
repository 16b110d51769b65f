// Package segment persists the inverted index as a single on-disk file: a
// fixed binary header, a JSON-encoded snapshot body, and a CRC32 footer.
// Writes go to a temp file and are renamed into place, so readers only ever
// see a fully written segment and a crash mid-write leaves the previous
// checkpoint intact.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"pubfinder/internal/index"
	apperrors "pubfinder/pkg/errors"
)

const (
	// MagicBytes identifies a valid .pfx segment file.
	MagicBytes    uint32 = 0x50464458
	FormatVersion uint32 = 1

	// FileName is the single committed segment within a data directory.
	FileName = "index.pfx"

	headerSize = 24
	footerSize = 4
)

// Path returns the committed segment path inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Exists reports whether a committed segment is present in dataDir.
func Exists(dataDir string) bool {
	_, err := os.Stat(Path(dataDir))
	return err == nil
}

// Write serialises the snapshot into dataDir atomically, replacing any
// previous segment on success.
func Write(dataDir string, snap index.Snapshot) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	finalPath := Path(dataDir)
	tmpPath := finalPath + ".tmp"

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling segment body: %w", err)
	}

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(body)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}

	footer := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(footer, crc32.ChecksumIEEE(body))
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

// Load reads and validates the committed segment in dataDir. Structural
// failures (bad magic, version, truncation, checksum mismatch) return
// ErrCorruptSegment; a missing file returns an os.IsNotExist error.
func Load(dataDir string) (index.Snapshot, error) {
	var snap index.Snapshot

	data, err := os.ReadFile(Path(dataDir))
	if err != nil {
		return snap, err
	}
	if len(data) < headerSize+footerSize {
		return snap, apperrors.Newf(apperrors.ErrCorruptSegment, 500,
			"segment truncated: %d bytes", len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicBytes {
		return snap, apperrors.Newf(apperrors.ErrCorruptSegment, 500,
			"bad magic bytes %x", magic)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != FormatVersion {
		return snap, apperrors.Newf(apperrors.ErrCorruptSegment, 500,
			"unsupported segment version %d", version)
	}
	bodyLen := binary.LittleEndian.Uint64(data[8:16])
	if uint64(len(data)) != headerSize+bodyLen+footerSize {
		return snap, apperrors.Newf(apperrors.ErrCorruptSegment, 500,
			"segment length mismatch: header says %d body bytes", bodyLen)
	}

	body := data[headerSize : headerSize+bodyLen]
	checksum := binary.LittleEndian.Uint32(data[headerSize+bodyLen:])
	if crc32.ChecksumIEEE(body) != checksum {
		return snap, apperrors.New(apperrors.ErrCorruptSegment, 500,
			"checksum mismatch")
	}

	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, apperrors.Newf(apperrors.ErrCorruptSegment, 500,
			"parsing segment body: %v", err)
	}
	return snap, nil
}

// Remove deletes the committed segment, if any. Used by full rebuilds.
func Remove(dataDir string) error {
	err := os.Remove(Path(dataDir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing segment file: %w", err)
	}
	return nil
}
