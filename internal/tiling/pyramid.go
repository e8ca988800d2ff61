package tiling

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// maxMercatorLat is the latitude limit of the web mercator projection.
const maxMercatorLat = 85.05112878

// TileRange is the block of tiles covering a bound at one zoom level
type TileRange struct {
	Zoom     maptile.Zoom
	Min, Max maptile.Tile
}

// Count returns the number of tiles in the range.
func (r TileRange) Count() int64 {
	return int64(r.Max.X-r.Min.X+1) * int64(r.Max.Y-r.Min.Y+1)
}

// Range returns the XYZ tiles covering bound at zoom z.
func Range(bound orb.Bound, z maptile.Zoom) TileRange {
	topLeft := at(orb.Point{bound.Min.Lon(), bound.Max.Lat()}, z)
	bottomRight := at(orb.Point{bound.Max.Lon(), bound.Min.Lat()}, z)
	return TileRange{Zoom: z, Min: topLeft, Max: bottomRight}
}

// ExpectedTiles counts the tiles covering bound over the zoom range.
func ExpectedTiles(bound orb.Bound, minZoom, maxZoom int) int64 {
	var total int64
	for z := minZoom; z <= maxZoom; z++ {
		total += Range(bound, maptile.Zoom(z)).Count()
	}
	return total
}

func at(p orb.Point, z maptile.Zoom) maptile.Tile {
	lat := p.Lat()
	if lat > maxMercatorLat {
		lat = maxMercatorLat
	}
	if lat < -maxMercatorLat {
		lat = -maxMercatorLat
	}
	t := maptile.At(orb.Point{p.Lon(), lat}, z)

	last := uint32(1)<<uint32(z) - 1
	if t.X > last {
		t.X = last
	}
	if t.Y > last {
		t.Y = last
	}
	return t
}

// CountTiles walks a z/x/y tile tree and returns the number of tiles per
// zoom level. Files outside the numeric layout (viewer pages, metadata)
// are ignored.
func CountTiles(dir string) (map[int]int64, error) {
	counts := make(map[int]int64)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 {
			return nil
		}
		z, errZ := strconv.Atoi(parts[0])
		_, errX := strconv.Atoi(parts[1])
		_, errY := strconv.Atoi(strings.TrimSuffix(parts[2], filepath.Ext(parts[2])))
		if errZ != nil || errX != nil || errY != nil {
			return nil
		}
		counts[z]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// ViewerTitle returns the title of the viewer page written next to the tiles.
func ViewerTitle(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}
