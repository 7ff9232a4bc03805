package geo

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// GeometryKind tags which shape a raw geometry blob was recognized as.
type GeometryKind int

const (
	// KindUnrecognized means no usable coordinates were found.
	KindUnrecognized GeometryKind = iota
	// KindNested is a GeoJSON-style feature: geometry.coordinates = [lon, lat, ...].
	KindNested
	// KindFlat is a plain {lon, lat} mapping.
	KindFlat
)

func (k GeometryKind) String() string {
	switch k {
	case KindNested:
		return "nested"
	case KindFlat:
		return "flat"
	default:
		return "unrecognized"
	}
}

// Geometry is a raw blob resolved once into one of the known shapes.
// Lon and Lat are meaningful only when Kind != KindUnrecognized.
type Geometry struct {
	Kind GeometryKind
	Lon  float64
	Lat  float64
}

// Point converts the geometry to a validated point.
func (g Geometry) Point() (GeoPoint, bool) {
	if g.Kind == KindUnrecognized {
		return GeoPoint{}, false
	}
	return NewPoint(g.Lon, g.Lat)
}

// Extract resolves a raw geometry blob to a point. It never panics or errors:
// malformed input is reported as absent (false).
func Extract(blob any) (GeoPoint, bool) {
	return ParseGeometry(blob).Point()
}

// ParseGeometry classifies blob. Accepted inputs are map[string]any, JSON
// bytes (json.RawMessage, []byte, string) and GeoPoint values.
func ParseGeometry(blob any) Geometry {
	switch b := blob.(type) {
	case nil:
		return Geometry{}
	case GeoPoint:
		return Geometry{Kind: KindFlat, Lon: b.Lon, Lat: b.Lat}
	case *GeoPoint:
		if b == nil {
			return Geometry{}
		}
		return Geometry{Kind: KindFlat, Lon: b.Lon, Lat: b.Lat}
	case map[string]any:
		return parseMap(b)
	case json.RawMessage:
		return parseJSON(b)
	case []byte:
		return parseJSON(b)
	case string:
		return parseJSON([]byte(b))
	default:
		return Geometry{}
	}
}

func parseJSON(data []byte) Geometry {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return Geometry{}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Geometry{}
	}
	return parseMap(m)
}

func parseMap(m map[string]any) Geometry {
	if inner, ok := m["geometry"].(map[string]any); ok {
		if lon, lat, ok := coordinatePair(inner["coordinates"]); ok {
			return Geometry{Kind: KindNested, Lon: lon, Lat: lat}
		}
	}

	lonRaw, hasLon := m["lon"]
	latRaw, hasLat := m["lat"]
	if hasLon && hasLat {
		lon, okLon := toFloat(lonRaw)
		lat, okLat := toFloat(latRaw)
		if okLon && okLat {
			return Geometry{Kind: KindFlat, Lon: lon, Lat: lat}
		}
	}

	return Geometry{}
}

// coordinatePair reads the first two elements of a coordinate array; extra
// elements (altitude, measure) are ignored.
func coordinatePair(v any) (float64, float64, bool) {
	switch c := v.(type) {
	case []float64:
		if len(c) < 2 {
			return 0, 0, false
		}
		return c[0], c[1], true
	case []any:
		if len(c) < 2 {
			return 0, 0, false
		}
		lon, okLon := toFloat(c[0])
		lat, okLat := toFloat(c[1])
		return lon, lat, okLon && okLat
	default:
		return 0, 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
