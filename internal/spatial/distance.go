package spatial

import (
	"github.com/golang/geo/s2"
	"github.com/jengzang/shuttle-backend-go/internal/models"
)

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// NearestLocation returns the known location closest to (lat, lon) that lies within maxMeters.
// The second return value is false when no location qualifies or a coordinate is invalid.
func NearestLocation(lat, lon float64, locations []models.Location, maxMeters float64) (models.Location, bool) {
	p := s2.LatLngFromDegrees(lat, lon)
	if !p.IsValid() {
		return models.Location{}, false
	}

	var (
		best     models.Location
		bestDist float64
		found    bool
	)
	for _, loc := range locations {
		q := s2.LatLngFromDegrees(loc.Latitude, loc.Longitude)
		if !q.IsValid() {
			continue
		}
		d := p.Distance(q).Radians() * EarthRadiusMeters
		if d > maxMeters {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = loc, d, true
		}
	}
	return best, found
}

// Constants
const (
	EarthRadiusMeters = 6371000.0 // Earth's mean radius in meters
)
