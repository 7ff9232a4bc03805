package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// SRID for all stored geometries.
const SRID = 4326

// EncodeEWKB encodes p as a little-endian EWKB point with SRID 4326, suitable
// for a PostGIS geometry(Point, 4326) column.
func EncodeEWKB(p GeoPoint) ([]byte, error) {
	if !p.Valid() {
		return nil, eris.Errorf("geo: invalid point %v", p)
	}
	pt := geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

// DecodeEWKB decodes an EWKB point produced by EncodeEWKB.
func DecodeEWKB(data []byte) (GeoPoint, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return GeoPoint{}, eris.Wrap(err, "geo: decode EWKB")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return GeoPoint{}, eris.Errorf("geo: expected point, got %T", g)
	}
	p, ok := NewPoint(pt.X(), pt.Y())
	if !ok {
		return GeoPoint{}, eris.Errorf("geo: decoded point out of range (%v, %v)", pt.X(), pt.Y())
	}
	return p, nil
}

// Feature builds a GeoJSON point feature with the given id and properties.
func Feature(id string, p GeoPoint, props map[string]any) *geojson.Feature {
	return &geojson.Feature{
		ID:         id,
		Geometry:   geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}),
		Properties: props,
	}
}
