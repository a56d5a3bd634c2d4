// README: Pure geographic helpers used by the ranker.
package ranking

import (
	"math"

	"travelmate/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between a and b rounded to
// 0.1 km. It is symmetric and DistanceKm(a, a) == 0.
func DistanceKm(a, b types.GeoPoint) float64 {
	return roundTenth(haversineKm(a.Lat, a.Lng, b.Lat, b.Lng))
}

// haversineKm uses the asin form; h is clamped to 1 so float error on
// near-antipodal points cannot produce NaN.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	sLat := math.Sin(dLat / 2)
	sLng := math.Sin(dLng / 2)
	h := sLat*sLat + math.Cos(rLat1)*math.Cos(rLat2)*sLng*sLng

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
