package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapd-tech/civic-impact/internal/geo"
)

func TestExtractRecords(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []map[string]any
	}{
		{
			name: "v2 results",
			body: `{"total_count":2,"results":[{"name":"A"},{"name":"B"}]}`,
			want: []map[string]any{{"name": "A"}, {"name": "B"}},
		},
		{
			name: "v1 record fields",
			body: `{"records":[{"record":{"id":"x","fields":{"name":"A"}}}]}`,
			want: []map[string]any{{"name": "A"}},
		},
		{
			name: "record with empty fields falls back to record",
			body: `{"records":[{"record":{"id":"x","fields":{}}}]}`,
			want: []map[string]any{{"id": "x", "fields": map[string]any{}}},
		},
		{
			name: "fields envelope",
			body: `[{"fields":{"name":"A"}}]`,
			want: []map[string]any{{"name": "A"}},
		},
		{
			name: "non objects dropped",
			body: `[1, "two", {"name":"C"}]`,
			want: []map[string]any{{"name": "C"}},
		},
		{
			name: "no records",
			body: `{"total_count":0}`,
			want: []map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractRecords([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractRecords_InvalidJSON(t *testing.T) {
	_, err := ExtractRecords([]byte(`{`))
	assert.Error(t, err)
}

func TestToRecords_ParksPointRewrite(t *testing.T) {
	src := Source{Name: "parks", Slug: "parks", PointField: "googlemapdest"}
	recs := ToRecords(src, []map[string]any{
		{"name": "Stanley Park", "googlemapdest": map[string]any{"lon": -123.14, "lat": 49.30}},
		{"name": "No coords", "googlemapdest": map[string]any{"lon": nil}},
	})
	require.Len(t, recs, 2)

	assert.NotContains(t, recs[0].Fields, "googlemapdest")
	p, ok := geo.Extract(recs[0].Geom)
	require.True(t, ok)
	assert.InDelta(t, -123.14, p.Lon, 1e-12)
	assert.InDelta(t, 49.30, p.Lat, 1e-12)

	assert.NotContains(t, recs[1].Fields, "googlemapdest")
	assert.Nil(t, recs[1].Geom)
}

func TestToRecords_GeomMovedOutOfFields(t *testing.T) {
	src := Source{Name: "schools", Slug: "schools"}
	geom := map[string]any{
		"type":     "Feature",
		"geometry": map[string]any{"type": "Point", "coordinates": []any{-123.1, 49.2}},
	}
	recs := ToRecords(src, []map[string]any{{"school_name": "Lord Byng", "geom": geom}})
	require.Len(t, recs, 1)
	assert.Equal(t, geom, recs[0].Geom)
	assert.NotContains(t, recs[0].Fields, "geom")
	assert.Equal(t, "Lord Byng", recs[0].DisplayName())
}

func TestToRecords_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"name": "A", "geom": map[string]any{"lon": 1.0, "lat": 2.0}}
	ToRecords(Source{Slug: "x"}, []map[string]any{in})
	assert.Contains(t, in, "geom")
}

func TestRecordID(t *testing.T) {
	permits := Source{Slug: "issued-building-permits", IDField: "permitnumber"}
	recs := ToRecords(permits, []map[string]any{
		{"permitnumber": "BP-2025-00001", "address": "1 Main St"},
		{"permitnumber": "  ", "address": "2 Main St"},
		{"address": "2 Main St", "permitnumber": "  "},
	})
	assert.Equal(t, "BP-2025-00001", recs[0].ID)
	assert.Len(t, recs[1].ID, 36)
	assert.Equal(t, recs[1].ID, recs[2].ID, "derived ids are content based")

	other := ToRecords(Source{Slug: "other"}, []map[string]any{{"address": "2 Main St", "permitnumber": "  "}})
	assert.NotEqual(t, recs[1].ID, other[0].ID, "slug scopes derived ids")
}
