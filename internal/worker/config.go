// Package worker pre-warms the environmental cache for configured points so
// clients that go offline near them still have forecast data.
package worker

import (
	"sort"
	"time"

	"github.com/sundose/sundose/internal/uv"
)

// RefreshTarget is a named group of points.
type RefreshTarget struct {
	Name string

	// Points are the locations to pre-warm.
	Points []Point

	// Priority determines refresh order (lower = higher priority).
	Priority int
}

// Point is a location to pre-warm.
type Point struct {
	Lat      float64
	Lon      float64
	Altitude *float64
}

// Location converts the point into a forecast location.
func (p Point) Location() uv.Location {
	return uv.Location{Lat: p.Lat, Lon: p.Lon, Altitude: p.Altitude}
}

// RefreshConfig holds configuration for the refresh job.
type RefreshConfig struct {
	// Targets are the regions to refresh. If empty, uses DefaultRefreshTargets.
	Targets []RefreshTarget

	// Concurrency is the number of concurrent fetches.
	// Default: 3
	Concurrency int

	// Timeout bounds the fetch for one point.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Targets:     DefaultRefreshTargets(),
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

// DefaultRefreshTargets returns a spread of high-UV and high-latitude cities.
func DefaultRefreshTargets() []RefreshTarget {
	alt := func(m float64) *float64 { return &m }
	return []RefreshTarget{
		{
			Name:     "Tropics",
			Priority: 1,
			Points: []Point{
				{Lat: 1.3521, Lon: 103.8198},                       // Singapore
				{Lat: -6.2088, Lon: 106.8456},                      // Jakarta
				{Lat: 4.7110, Lon: -74.0721, Altitude: alt(2640)},  // Bogota
				{Lat: -0.1807, Lon: -78.4678, Altitude: alt(2850)}, // Quito
			},
		},
		{
			Name:     "Subtropics",
			Priority: 1,
			Points: []Point{
				{Lat: -33.8688, Lon: 151.2093}, // Sydney
				{Lat: 25.2048, Lon: 55.2708},   // Dubai
				{Lat: 33.4484, Lon: -112.0740}, // Phoenix
			},
		},
		{
			Name:     "Mid latitudes",
			Priority: 2,
			Points: []Point{
				{Lat: 37.7749, Lon: -122.4194},                      // San Francisco
				{Lat: 39.7392, Lon: -104.9903, Altitude: alt(1609)}, // Denver
				{Lat: 40.4168, Lon: -3.7038, Altitude: alt(667)},    // Madrid
			},
		},
		{
			Name:     "High latitudes",
			Priority: 3,
			Points: []Point{
				{Lat: 51.5074, Lon: -0.1278},  // London
				{Lat: 59.3293, Lon: 18.0686},  // Stockholm
				{Lat: 64.1466, Lon: -21.9426}, // Reykjavik
			},
		},
	}
}

// AllPoints returns all points from all targets, ordered by priority.
func (c RefreshConfig) AllPoints() []Point {
	targets := make([]RefreshTarget, len(c.Targets))
	copy(targets, c.Targets)
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Priority < targets[j].Priority })

	var points []Point
	for _, target := range targets {
		points = append(points, target.Points...)
	}
	return points
}

// TotalPoints returns the total number of points to refresh.
func (c RefreshConfig) TotalPoints() int {
	total := 0
	for _, target := range c.Targets {
		total += len(target.Points)
	}
	return total
}
