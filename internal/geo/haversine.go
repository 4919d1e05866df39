// Package geo implements the geodesic distance calculation findNearbyPorters
// requires (§4.2: "Distance is geodesic (haversine)").
package geo

import "math"

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two
// lat/lng points in meters.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := deg2rad(lat1)
	phi2 := deg2rad(lat2)
	dPhi := deg2rad(lat2 - lat1)
	dLambda := deg2rad(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}
