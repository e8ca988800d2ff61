package geodata

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// assembleRings joins way geometries end to end into closed rings. A way
// may be walked in either direction. Chains that cannot be closed are
// dropped.
func assembleRings(ways [][]latLon) []orb.Ring {
	var parts []orb.LineString
	for _, w := range ways {
		if ls := lineString(w); len(ls) >= 2 {
			parts = append(parts, ls)
		}
	}

	var rings []orb.Ring
	used := make([]bool, len(parts))
	for i := range parts {
		if used[i] {
			continue
		}
		used[i] = true
		chain := parts[i].Clone()

		for !isClosed(chain) {
			j, reverse := nextPart(parts, used, chain[len(chain)-1])
			if j < 0 {
				break
			}
			used[j] = true
			next := parts[j].Clone()
			if reverse {
				next.Reverse()
			}
			chain = append(chain, next[1:]...)
		}

		if isClosed(chain) && len(chain) >= 4 {
			rings = append(rings, orb.Ring(chain))
		}
	}
	return rings
}

// nextPart finds an unused part that starts or ends at p.
func nextPart(parts []orb.LineString, used []bool, p orb.Point) (int, bool) {
	for j, part := range parts {
		if used[j] {
			continue
		}
		if part[0] == p {
			return j, false
		}
		if part[len(part)-1] == p {
			return j, true
		}
	}
	return -1, false
}

func isClosed(ls orb.LineString) bool {
	return len(ls) > 1 && ls[0] == ls[len(ls)-1]
}

func lineString(pts []latLon) orb.LineString {
	ls := make(orb.LineString, len(pts))
	for i, p := range pts {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return ls
}

// polygons builds one polygon per outer ring and attaches every inner ring
// to the first outer ring that contains it. Unplaced inner rings are left
// out.
func polygons(outers, inners []orb.Ring) orb.MultiPolygon {
	mp := make(orb.MultiPolygon, 0, len(outers))
	for _, r := range outers {
		mp = append(mp, orb.Polygon{r})
	}
	for _, in := range inners {
		for i := range mp {
			if planar.RingContains(mp[i][0], in[0]) {
				mp[i] = append(mp[i], in)
				break
			}
		}
	}
	return mp
}
