package api

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpatial(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		active  bool
		wantErr bool
	}{
		{name: "all present", query: "lon=-123.15525&lat=49.249783&distance=0.5", active: true},
		{name: "none", query: ""},
		{name: "missing distance", query: "lon=-123.1&lat=49.2"},
		{name: "missing lon", query: "lat=49.2&distance=1"},
		{name: "zero distance", query: "lon=-123.1&lat=49.2&distance=0", active: true},
		{name: "bad lon", query: "lon=west&lat=49.2&distance=1", wantErr: true},
		{name: "bad lone value", query: "distance=far", wantErr: true},
		{name: "infinite", query: "lon=-123.1&lat=Inf&distance=1", wantErr: true},
		{name: "lat out of range", query: "lon=-123.1&lat=91&distance=1", wantErr: true},
		{name: "negative distance", query: "lon=-123.1&lat=49.2&distance=-0.1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			sq, err := parseSpatial(q)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.active, sq.Active)
		})
	}
}

func TestParseSpatial_Values(t *testing.T) {
	q, _ := url.ParseQuery("lon=-123.15525&lat=49.249783&distance=0.5")
	sq, err := parseSpatial(q)
	require.NoError(t, err)
	assert.InDelta(t, -123.15525, sq.Origin.Lon, 1e-12)
	assert.InDelta(t, 49.249783, sq.Origin.Lat, 1e-12)
	assert.InDelta(t, 0.5, sq.RadiusKM, 1e-12)
}

func TestParseBool(t *testing.T) {
	q, _ := url.ParseQuery("a=false&b=1&c=nope")

	v, err := parseBool(q, "a", true)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = parseBool(q, "b", false)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = parseBool(q, "missing", true)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = parseBool(q, "c", true)
	assert.Error(t, err)
}
