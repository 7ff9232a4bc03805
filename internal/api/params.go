package api

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mapd-tech/civic-impact/internal/geo"
)

// spatialQuery is the optional lon/lat/distance filter. Active is false
// unless all three parameters are present.
type spatialQuery struct {
	Active   bool
	Origin   geo.GeoPoint
	RadiusKM float64
}

func parseSpatial(q url.Values) (spatialQuery, error) {
	rawLon := strings.TrimSpace(q.Get("lon"))
	rawLat := strings.TrimSpace(q.Get("lat"))
	rawDist := strings.TrimSpace(q.Get("distance"))

	var sq spatialQuery
	lon, err := parseNumber("lon", rawLon)
	if err != nil {
		return sq, err
	}
	lat, err := parseNumber("lat", rawLat)
	if err != nil {
		return sq, err
	}
	dist, err := parseNumber("distance", rawDist)
	if err != nil {
		return sq, err
	}
	if rawLon == "" || rawLat == "" || rawDist == "" {
		return sq, nil
	}

	origin, ok := geo.NewPoint(lon, lat)
	if !ok {
		return sq, eris.Errorf("lon/lat out of range: %s,%s", rawLon, rawLat)
	}
	if dist < 0 {
		return sq, eris.Errorf("distance must not be negative: %s", rawDist)
	}
	return spatialQuery{Active: true, Origin: origin, RadiusKM: dist}, nil
}

// parseNumber parses raw as a finite float. Empty input is 0 with no error.
func parseNumber(name, raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

// parseBool reads an optional boolean parameter.
func parseBool(q url.Values, name string, def bool) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, eris.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func wantsGeoJSON(q url.Values) bool {
	return strings.EqualFold(q.Get("format"), "geojson")
}
