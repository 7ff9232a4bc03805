package geo

import "math"

// EarthRadiusKM is the mean Earth radius used by Haversine.
const EarthRadiusKM = 6371.0

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b GeoPoint) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon) - radians(a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// Floating error can push h a hair outside [0,1] near antipodes.
	h = math.Max(0, math.Min(1, h))
	c := 2 * math.Asin(math.Sqrt(h))

	return EarthRadiusKM * c
}

// DistanceBetween returns the distance between two optional points. It is
// absent (false) when either point is nil or invalid.
func DistanceBetween(a, b *GeoPoint) (float64, bool) {
	if a == nil || b == nil || !a.Valid() || !b.Valid() {
		return 0, false
	}
	return Haversine(*a, *b), true
}

// RoundKM rounds a distance to three decimals (meters).
func RoundKM(km float64) float64 {
	return math.Round(km*1000) / 1000
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
