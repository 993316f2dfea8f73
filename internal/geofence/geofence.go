// Package geofence implements the radius-based match between a GPS fix and
// the registered gym locations. Pure math, no I/O.
package geofence

import (
	"math"
)

// earthRadiusM is the mean Earth radius used by the haversine formula.
const earthRadiusM = 6371000.0

// Location is a registered gym location. RadiusM of zero means the global
// default radius applies.
type Location struct {
	ID        uint
	Name      string
	Latitude  float64
	Longitude float64
	RadiusM   float64
}

// Point is a GPS fix supplied by the caller.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Result is a geofence evaluation snapshot for a single request.
// DistanceM is nil when no GPS was supplied or no locations are configured,
// never a fabricated non-match.
type Result struct {
	Provided    bool     `json:"gps_provided"`
	Matched     bool     `json:"matched"`
	NearestName string   `json:"nearest_name,omitempty"`
	DistanceM   *float64 `json:"distance_m,omitempty"`
	RadiusM     float64  `json:"radius_m,omitempty"`
}

// Distance returns the great-circle distance in meters between two points
// using the haversine formula.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// Evaluate finds the nearest registered location to the supplied point and
// reports whether it falls within that location's radius. A nil point means
// no GPS was supplied. Distances are rounded to 0.1 m.
func Evaluate(locations []Location, point *Point, defaultRadiusM float64) Result {
	if point == nil {
		return Result{Provided: false}
	}

	result := Result{Provided: true}
	if len(locations) == 0 {
		return result
	}

	nearestIdx := -1
	nearestDistance := math.MaxFloat64
	for i := range locations {
		d := Distance(*point, Point{Latitude: locations[i].Latitude, Longitude: locations[i].Longitude})
		if d < nearestDistance {
			nearestDistance = d
			nearestIdx = i
		}
	}

	nearest := locations[nearestIdx]
	radius := nearest.RadiusM
	if radius <= 0 {
		radius = defaultRadiusM
	}

	rounded := math.Round(nearestDistance*10) / 10
	result.NearestName = nearest.Name
	result.DistanceM = &rounded
	result.RadiusM = radius
	result.Matched = nearestDistance <= radius
	return result
}
