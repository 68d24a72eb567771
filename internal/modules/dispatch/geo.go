// README: Pure geographic computation helpers.
package dispatch

import (
	"math"

	"taybat/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// RoundKm truncates a distance to 3 decimal places, the precision stored on
// suggestions and orders.
func RoundKm(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
