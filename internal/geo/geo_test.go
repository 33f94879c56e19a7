package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceZeroForSamePoint(t *testing.T) {
	p := Point{Latitude: 51.5074, Longitude: -0.1278}
	assert.Zero(t, Distance(p, p))
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := Point{Latitude: 51.5074, Longitude: -0.1278}
	b := Point{Latitude: 51.5226, Longitude: -0.1571}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
}

func TestDistanceKnownValue(t *testing.T) {
	// One degree of longitude at the equator is about 111.19 km.
	a := Point{Latitude: 0, Longitude: 0}
	b := Point{Latitude: 0, Longitude: 1}
	assert.InDelta(t, 111195, Distance(a, b), 50)
}

func TestGeofenceContains(t *testing.T) {
	fence := Geofence{
		Center:       Point{Latitude: 51.5074, Longitude: -0.1278},
		RadiusMeters: 100,
	}

	assert.True(t, fence.Contains(fence.Center))

	// About 90 m north of center.
	inside := Point{Latitude: 51.50821, Longitude: -0.1278}
	assert.True(t, fence.Contains(inside))

	// About 220 m north of center.
	outside := Point{Latitude: 51.50938, Longitude: -0.1278}
	assert.False(t, fence.Contains(outside))
}

func TestIsNearFallsBackToDefaultThreshold(t *testing.T) {
	dest := Point{Latitude: 51.5074, Longitude: -0.1278}
	// About 150 m away, within the 200 m default.
	p := Point{Latitude: 51.50875, Longitude: -0.1278}

	assert.True(t, IsNear(p, dest, 0))
	assert.False(t, IsNear(p, dest, 100))
}
