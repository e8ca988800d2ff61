// Package geodata fetches boundary polygons from the OpenStreetMap Overpass API.
package geodata

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// ErrEmptyQuery is returned when neither a bounding box nor a place is given.
var ErrEmptyQuery = errors.New("query needs a bounding box or a place name")

// Query selects OSM ways and relations inside an area.
type Query struct {
	// Bound limits the search to a bounding box. Ignored when Place is set.
	Bound orb.Bound
	// Place searches inside the area whose name tag equals Place.
	Place string
	// Name is a regular expression matched against the name tag. Empty
	// means any named or unnamed feature.
	Name string
	// Key restricts the search to elements carrying this tag key, e.g. "boundary".
	Key string
	// Timeout is the server-side query timeout in seconds.
	Timeout int
}

// ParseBound parses "minlon,minlat,maxlon,maxlat".
func ParseBound(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bounding box %q: want minlon,minlat,maxlon,maxlat", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bounding box %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return orb.Bound{}, fmt.Errorf("bounding box %q: minimum must be below maximum", s)
	}
	if v[1] < -90 || v[3] > 90 || v[0] < -180 || v[2] > 180 {
		return orb.Bound{}, fmt.Errorf("bounding box %q: outside lon/lat range", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// QL renders the query in Overpass QL with full geometry output.
func (q Query) QL() (string, error) {
	if q.Place == "" && !hasArea(q.Bound) {
		return "", ErrEmptyQuery
	}
	if q.Name != "" {
		if _, err := regexp.Compile(q.Name); err != nil {
			return "", fmt.Errorf("invalid name filter: %w", err)
		}
	}

	timeout := q.Timeout
	if timeout <= 0 {
		timeout = 60
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n", timeout)

	var scope string
	if q.Place != "" {
		fmt.Fprintf(&b, "area[name=%s]->.searchArea;\n", quote(q.Place))
		scope = "(area.searchArea)"
	} else {
		scope = fmt.Sprintf("(%s,%s,%s,%s)",
			coord(q.Bound.Min.Lat()), coord(q.Bound.Min.Lon()),
			coord(q.Bound.Max.Lat()), coord(q.Bound.Max.Lon()))
	}

	filter := ""
	if q.Key != "" {
		filter += "[" + quote(q.Key) + "]"
	}
	if q.Name != "" {
		filter += "[name~" + quote(q.Name) + "]"
	}

	b.WriteString("(\n")
	fmt.Fprintf(&b, "  way%s%s;\n", filter, scope)
	fmt.Fprintf(&b, "  relation%s%s;\n", filter, scope)
	b.WriteString(");\nout geom;\n")
	return b.String(), nil
}

func hasArea(b orb.Bound) bool {
	return b.Max.Lon() > b.Min.Lon() && b.Max.Lat() > b.Min.Lat()
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func coord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
