package geo

import "math"

// EarthRadiusMeters is the spherical-Earth approximation used by Distance.
const EarthRadiusMeters = 6371000.0

// DefaultNearThresholdMeters is how close a driver has to be to the
// customer before a delivery is considered "near".
const DefaultNearThresholdMeters = 200.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geofence is a circular boundary around a center point.
type Geofence struct {
	Center       Point
	RadiusMeters float64
}

// Distance returns the great-circle distance between two points in meters,
// computed with the haversine formula.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	deltaLat := (b.Latitude - a.Latitude) * math.Pi / 180
	deltaLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Contains reports whether p lies on or inside the geofence boundary.
func (g Geofence) Contains(p Point) bool {
	return Distance(p, g.Center) <= g.RadiusMeters
}

// IsNear reports whether p is within threshold meters of dest.
// A zero or negative threshold falls back to the default.
func IsNear(p, dest Point, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultNearThresholdMeters
	}
	return Distance(p, dest) <= threshold
}
