// Package webmap writes a standalone Leaflet page showing a tile layer and
// vector overlays.
package webmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

// LeafletVersion is loaded from the unpkg CDN.
const LeafletVersion = "1.9.4"

// ErrBadTemplate is returned for a tile URL template without {z}, {x} and {y}.
var ErrBadTemplate = errors.New("tile URL template must contain {z}, {x} and {y}")

var palette = []string{"#d7301f", "#225ea8", "#238443", "#88419d", "#cc4c02"}

// Overlay is a named GeoJSON layer drawn over the tiles
type Overlay struct {
	Name  string
	Color string
	Data  *geojson.FeatureCollection
}

// Page describes the generated map
type Page struct {
	Title       string
	TileURL     string
	TMS         bool
	Attribution string
	MinZoom     int
	MaxZoom     int
	// Bound is the initial view. A zero bound shows the whole world.
	Bound    orb.Bound
	Overlays []Overlay
	// Basemap adds an OpenStreetMap layer under the scanned tiles.
	Basemap bool
}

// ValidateTemplate checks that a tile URL template has every placeholder.
func ValidateTemplate(tmpl string) error {
	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(tmpl, p) {
			return fmt.Errorf("%q: %w", tmpl, ErrBadTemplate)
		}
	}
	return nil
}

// TileURL expands a template for one tile. With tms set the row is counted
// from the south, as gdal2tiles writes it by default.
func TileURL(tmpl string, t maptile.Tile, tms bool) string {
	y := t.Y
	if tms {
		y = (uint32(1) << uint32(t.Z)) - 1 - t.Y
	}
	return strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(t.Z), 10),
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(y), 10),
	).Replace(tmpl)
}

type overlayView struct {
	Name  string
	Color string
	Data  template.JS
}

type pageView struct {
	Page
	Leaflet  string
	HasBound bool
	South    float64
	West     float64
	North    float64
	East     float64
	Overlays []overlayView
}

// Compose renders page as HTML into w.
func Compose(w io.Writer, page Page) error {
	if err := ValidateTemplate(page.TileURL); err != nil {
		return err
	}
	if page.MaxZoom == 0 {
		page.MaxZoom = 18
	}
	if page.MinZoom > page.MaxZoom {
		return fmt.Errorf("min zoom %d above max zoom %d", page.MinZoom, page.MaxZoom)
	}
	if page.Title == "" {
		page.Title = "Map"
	}

	view := pageView{
		Page:     page,
		Leaflet:  LeafletVersion,
		HasBound: page.Bound.Max.Lon() > page.Bound.Min.Lon() && page.Bound.Max.Lat() > page.Bound.Min.Lat(),
		South:    page.Bound.Min.Lat(),
		West:     page.Bound.Min.Lon(),
		North:    page.Bound.Max.Lat(),
		East:     page.Bound.Max.Lon(),
	}

	for i, o := range page.Overlays {
		if o.Data == nil {
			continue
		}
		data, err := json.Marshal(o.Data)
		if err != nil {
			return fmt.Errorf("failed to encode overlay %q: %w", o.Name, err)
		}
		color := o.Color
		if color == "" {
			color = palette[i%len(palette)]
		}
		name := o.Name
		if name == "" {
			name = fmt.Sprintf("Overlay %d", i+1)
		}
		view.Overlays = append(view.Overlays, overlayView{Name: name, Color: color, Data: template.JS(data)})
	}

	return pageTemplate.Execute(w, view)
}

// WriteFile composes the page into dir/index.html and returns its path.
func WriteFile(dir string, page Page) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "index.html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := Compose(f, page); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// ReadOverlay loads a GeoJSON feature collection written by the boundaries command.
func ReadOverlay(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return fc, nil
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@{{.Leaflet}}/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@{{.Leaflet}}/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map', {minZoom: {{.MinZoom}}, maxZoom: {{.MaxZoom}}});
var baseLayers = {};
{{- if .Basemap}}
baseLayers["OpenStreetMap"] = L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
  maxZoom: 19,
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
{{- end}}
var scans = L.tileLayer({{.TileURL}}, {
  tms: {{.TMS}},
  minZoom: {{.MinZoom}},
  maxZoom: {{.MaxZoom}},
  attribution: {{.Attribution}}
}).addTo(map);
var overlays = {"Scanned map": scans};
{{- range .Overlays}}
overlays[{{.Name}}] = L.geoJSON({{.Data}}, {
  style: {color: {{.Color}}, weight: 2, fillOpacity: 0.05},
  onEachFeature: function (f, layer) {
    if (f.properties && f.properties.name) { layer.bindPopup(f.properties.name); }
  }
}).addTo(map);
{{- end}}
L.control.layers(baseLayers, overlays).addTo(map);
{{- if .HasBound}}
map.fitBounds([[{{.South}}, {{.West}}], [{{.North}}, {{.East}}]]);
{{- else}}
map.setView([0, 0], {{.MinZoom}});
{{- end}}
</script>
</body>
</html>
`))
