package geodata

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeElements(t *testing.T, doc string) []element {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal([]byte(doc), &r))
	return r.Elements
}

func TestRelationOuterRingSplitOverWays(t *testing.T) {
	elements := decodeElements(t, `{"elements": [{
		"type": "relation", "id": 5, "tags": {"name": "Kecamatan"},
		"members": [
			{"type": "way", "ref": 1, "role": "outer", "geometry": [
				{"lat": 0, "lon": 0}, {"lat": 0, "lon": 1}, {"lat": 1, "lon": 1}
			]},
			{"type": "way", "ref": 2, "role": "outer", "geometry": [
				{"lat": 1, "lon": 1}, {"lat": 1, "lon": 0}, {"lat": 0, "lon": 0}
			]}
		]
	}]}`)

	fc := toFeatures(elements)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "relation/5", fc.Features[0].ID)

	poly, ok := fc.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 1)
	assert.Equal(t, orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}, poly[0])
}

func TestRelationRingsJoinReversedWaysAndHoles(t *testing.T) {
	elements := decodeElements(t, `{"elements": [{
		"type": "relation", "id": 6,
		"members": [
			{"type": "way", "ref": 1, "role": "outer", "geometry": [
				{"lat": 0, "lon": 0}, {"lat": 0, "lon": 4}, {"lat": 4, "lon": 4}
			]},
			{"type": "way", "ref": 2, "role": "outer", "geometry": [
				{"lat": 0, "lon": 0}, {"lat": 4, "lon": 0}, {"lat": 4, "lon": 4}
			]},
			{"type": "way", "ref": 3, "role": "inner", "geometry": [
				{"lat": 1, "lon": 1}, {"lat": 1, "lon": 2}, {"lat": 2, "lon": 2}
			]},
			{"type": "way", "ref": 4, "role": "inner", "geometry": [
				{"lat": 2, "lon": 2}, {"lat": 2, "lon": 1}, {"lat": 1, "lon": 1}
			]},
			{"type": "way", "ref": 5, "role": "outer", "geometry": [
				{"lat": 9, "lon": 9}, {"lat": 9, "lon": 10}
			]},
			{"type": "node", "ref": 6, "role": "admin_centre"}
		]
	}]}`)

	fc := toFeatures(elements)
	require.Len(t, fc.Features, 1)

	poly, ok := fc.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	require.Len(t, poly, 2, "outer ring plus one hole")
	assert.Equal(t, orb.Ring{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}, poly[0])
	assert.Len(t, poly[1], 5)
}

func TestRelationWithUnclosableRingsIsDropped(t *testing.T) {
	elements := decodeElements(t, `{"elements": [{
		"type": "relation", "id": 7,
		"members": [
			{"type": "way", "ref": 1, "role": "outer", "geometry": [
				{"lat": 0, "lon": 0}, {"lat": 0, "lon": 1}, {"lat": 1, "lon": 1}
			]},
			{"type": "way", "ref": 2, "role": "outer", "geometry": [
				{"lat": 1, "lon": 1}, {"lat": 2, "lon": 2}
			]}
		]
	}]}`)

	assert.Empty(t, toFeatures(elements).Features)
}

func TestAssembleRingsKeepsClosedWays(t *testing.T) {
	rings := assembleRings([][]latLon{
		{{0, 0}, {0, 1}, {1, 1}, {0, 0}},
		{{5, 5}, {5, 6}},
		{{5, 6}, {6, 6}, {5, 5}},
	})
	require.Len(t, rings, 2)
	assert.Equal(t, orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, rings[0])
	assert.Equal(t, orb.Ring{{5, 5}, {6, 5}, {6, 6}, {5, 5}}, rings[1])
}
