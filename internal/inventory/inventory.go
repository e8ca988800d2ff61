// Package inventory lists raster files in a directory and orders them by size.
package inventory

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/chmdznr/oldmaps/pkg/models"
	"golang.org/x/crypto/blake2b"
)

// DefaultPattern matches .jpg, .JPG, .tif and .TIF once compiled case-insensitively.
const DefaultPattern = `\.(jpg|tif)$`

// ErrOutOfRange is returned by NthLargest for an index outside the inventory.
var ErrOutOfRange = errors.New("index out of range")

// CompilePattern compiles an extension pattern for case-insensitive matching.
// An empty pattern selects DefaultPattern.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}
	return re, nil
}

// Scan lists the regular files directly inside dir whose name matches pattern
// and returns them ordered by SortBySizeDesc. A directory without matches
// yields an empty slice.
func Scan(dir, pattern string) ([]models.FileRecord, error) {
	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	records := make([]models.FileRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !re.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		records = append(records, models.FileRecord{
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	SortBySizeDesc(records)
	return records, nil
}

// SortBySizeDesc orders records largest first. Equal sizes are ordered by
// path so the order is total and stable across runs.
func SortBySizeDesc(records []models.FileRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Size != records[j].Size {
			return records[i].Size > records[j].Size
		}
		return records[i].Path < records[j].Path
	})
}

// NthLargest returns the record of rank n (0 = largest) without modifying
// the input slice.
func NthLargest(records []models.FileRecord, n int) (models.FileRecord, error) {
	if n < 0 || n >= len(records) {
		return models.FileRecord{}, fmt.Errorf("rank %d of %d files: %w", n, len(records), ErrOutOfRange)
	}
	sorted := make([]models.FileRecord, len(records))
	copy(sorted, records)
	SortBySizeDesc(sorted)
	return sorted[n], nil
}

// Index maps each record's base file name to its position in records.
func Index(records []models.FileRecord) map[string]int {
	idx := make(map[string]int, len(records))
	for i, r := range records {
		idx[filepath.Base(r.Path)] = i
	}
	return idx
}

// Checksum returns the hex blake2b-256 digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
