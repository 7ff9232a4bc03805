package geo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/geojson"
)

func TestEWKBRoundTrip(t *testing.T) {
	p := GeoPoint{Lon: -123.0911, Lat: 49.2778}

	data, err := EncodeEWKB(p)
	require.NoError(t, err)
	// NDR byte order marker.
	assert.Equal(t, byte(1), data[0])

	got, err := DecodeEWKB(data)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestEncodeEWKB_Invalid(t *testing.T) {
	_, err := EncodeEWKB(GeoPoint{Lon: 500})
	assert.Error(t, err)
}

func TestDecodeEWKB_Garbage(t *testing.T) {
	_, err := DecodeEWKB([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestFeature(t *testing.T) {
	f := Feature("p1", GeoPoint{Lon: -123.1, Lat: 49.28}, map[string]any{"name": "Library"})

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded geojson.Feature
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "p1", decoded.ID)
	assert.Equal(t, "Library", decoded.Properties["name"])
	assert.Equal(t, []float64{-123.1, 49.28}, decoded.Geometry.FlatCoords())
}
