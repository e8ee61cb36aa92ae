// Package geo provides great-circle distances between airports.
package geo

import "math"

const (
	// EarthRadiusMiles is the mean radius of Earth in miles.
	EarthRadiusMiles = 3958.8
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0
)

// Coordinates represents a geographic point in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// IsValid returns true if the coordinates are within valid ranges.
func (c Coordinates) IsValid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Haversine returns the great-circle distance in miles.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return haversine(lat1, lon1, lat2, lon2, EarthRadiusMiles)
}

// HaversineKm returns the great-circle distance in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	return haversine(lat1, lon1, lat2, lon2, EarthRadiusKm)
}

func haversine(lat1, lon1, lat2, lon2, radius float64) float64 {
	lat1Rad := degreesToRadians(lat1)
	lat2Rad := degreesToRadians(lat2)
	deltaLat := degreesToRadians(lat2 - lat1)
	deltaLon := degreesToRadians(lon2 - lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return radius * c
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// PathDistanceKm sums the leg distances along points in order. Legs touching
// an invalid point are skipped; fewer than two points give zero.
func PathDistanceKm(points []Coordinates) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		from, to := points[i-1], points[i]
		if !from.IsValid() || !to.IsValid() {
			continue
		}
		total += HaversineKm(from.Lat, from.Lon, to.Lat, to.Lon)
	}
	return total
}
