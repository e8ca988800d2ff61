package pipeline

import (
	"path/filepath"

	"github.com/chmdznr/oldmaps/internal/inventory"
	"github.com/chmdznr/oldmaps/pkg/models"
)

// Verification is the outcome of re-scanning a derivative directory
type Verification struct {
	Checked int
	// Larger lists derivatives bigger than their original.
	Larger []string
	// Missing lists originals without a derivative in the directory.
	Missing []string
	// Changed lists derivatives whose content differs from the recorded checksum.
	Changed []string
}

// OK reports whether every original has a derivative that is no larger and
// matches its recorded checksum.
func (v Verification) OK() bool {
	return len(v.Larger) == 0 && len(v.Missing) == 0 && len(v.Changed) == 0
}

// VerifyResized re-scans dir with the same pattern as the inventory and
// checks each resized file against its original.
func VerifyResized(records []models.FileRecord, dir, pattern string) (Verification, error) {
	var v Verification

	derived, err := inventory.Scan(dir, pattern)
	if err != nil {
		return v, err
	}
	byName := inventory.Index(derived)

	for _, rec := range records {
		name := filepath.Base(rec.Path)
		i, ok := byName[name]
		if !ok {
			v.Missing = append(v.Missing, rec.Path)
			continue
		}
		v.Checked++
		d := derived[i]
		if d.Size > rec.Size {
			v.Larger = append(v.Larger, d.Path)
		}
		if rec.Resized.Checksum == "" {
			continue
		}
		sum, err := inventory.Checksum(d.Path)
		if err != nil {
			return v, err
		}
		if sum != rec.Resized.Checksum {
			v.Changed = append(v.Changed, d.Path)
		}
	}
	return v, nil
}
