package tiling

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/chmdznr/oldmaps/internal/inventory"
)

// GeoTIFFPattern matches the rasters written by the georeferencer.
const GeoTIFFPattern = `\.tiff?$`

// Source is a georeferenced raster ready for tiling
type Source struct {
	Path string
	Size int64
	// Sidecars lists world files and aux metadata found next to the raster.
	Sidecars []string
}

// Sources lists georeferenced rasters in dir, largest first.
func Sources(dir string) ([]Source, error) {
	records, err := inventory.Scan(dir, GeoTIFFPattern)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(records))
	for _, r := range records {
		sources = append(sources, Source{
			Path:     r.Path,
			Size:     r.Size,
			Sidecars: sidecars(r.Path),
		})
	}
	return sources, nil
}

func sidecars(path string) []string {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	candidates := []string{stem + ".tfw", stem + ".tifw", stem + ".wld", path + ".aux.xml"}

	var found []string
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			found = append(found, c)
		}
	}
	return found
}
