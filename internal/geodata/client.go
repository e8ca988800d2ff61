package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const userAgent = "oldmaps/1 (+https://github.com/chmdznr/oldmaps)"

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("overpass returned status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Client queries an Overpass endpoint
type Client struct {
	Endpoint string
	HTTP     *http.Client
}

// NewClient creates a client with the same transport limits used for uploads.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		Endpoint: endpoint,
		HTTP:     &http.Client{Transport: tr, Timeout: timeout},
	}
}

// Polygons runs q and returns the polygon subset of the response. An answer
// without polygons is an empty collection, not an error.
func (c *Client) Polygons(ctx context.Context, q Query) (*geojson.FeatureCollection, error) {
	ql, err := q.QL()
	if err != nil {
		return nil, err
	}

	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var doc response
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}
	if strings.Contains(doc.Remark, "error") {
		return nil, fmt.Errorf("overpass: %s", doc.Remark)
	}
	return toFeatures(doc.Elements), nil
}

type response struct {
	Elements []element `json:"elements"`
	Remark   string    `json:"remark"`
}

type element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []latLon          `json:"geometry"`
	Members  []member          `json:"members"`
}

type member struct {
	Type     string   `json:"type"`
	Ref      int64    `json:"ref"`
	Role     string   `json:"role"`
	Geometry []latLon `json:"geometry"`
}

type latLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// toFeatures keeps closed ways and the polygons of relations. Relation
// rings may be split over several member ways.
func toFeatures(elements []element) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, el := range elements {
		var geom orb.Geometry
		switch el.Type {
		case "way":
			if ring, ok := closedRing(el.Geometry); ok {
				geom = orb.Polygon{ring}
			}
		case "relation":
			var outer, inner [][]latLon
			for _, m := range el.Members {
				if m.Type != "way" {
					continue
				}
				switch m.Role {
				case "outer", "":
					outer = append(outer, m.Geometry)
				case "inner":
					inner = append(inner, m.Geometry)
				}
			}
			mp := polygons(assembleRings(outer), assembleRings(inner))
			switch len(mp) {
			case 0:
			case 1:
				geom = mp[0]
			default:
				geom = mp
			}
		}
		if geom == nil {
			continue
		}

		f := geojson.NewFeature(geom)
		f.ID = fmt.Sprintf("%s/%d", el.Type, el.ID)
		for k, v := range el.Tags {
			f.Properties[k] = v
		}
		f.Properties["osm_id"] = el.ID
		f.Properties["osm_type"] = el.Type
		fc.Append(f)
	}
	return fc
}

func closedRing(pts []latLon) (orb.Ring, bool) {
	ls := lineString(pts)
	if len(ls) < 4 || !isClosed(ls) {
		return nil, false
	}
	return orb.Ring(ls), true
}
