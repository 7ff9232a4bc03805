// Package geo resolves raw geometry blobs to points and joins permits with
// nearby amenity records by great-circle distance.
package geo

import "math"

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// NewPoint returns the point and true when both coordinates are finite and in
// range. Otherwise it returns the zero point and false.
func NewPoint(lon, lat float64) (GeoPoint, bool) {
	p := GeoPoint{Lon: lon, Lat: lat}
	if !p.Valid() {
		return GeoPoint{}, false
	}
	return p, true
}

// Valid reports whether p is a usable coordinate.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
		return false
	}
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}
