// Package envcache is the durable per-day, per-location cache of hourly UV
// and cloud-cover series with sun-event timestamps.
package envcache

import (
	"math"
	"time"
)

// DateLayout is the calendar date format used in record keys.
const DateLayout = "2006-01-02"

// Defaults for the cache.
const (
	// DefaultTolerance is the lookup window in degrees (~1.1 km).
	DefaultTolerance = 0.01

	// DefaultRetentionDays is how long records are kept after their date.
	DefaultRetentionDays = 7
)

// coordEpsilon absorbs float error at the edge of the tolerance window.
const coordEpsilon = 1e-9

// DayRecord is one cached day of environmental data for a location.
// Lat and Lon are the point the record was written for; the storage key
// uses them rounded to two decimals.
type DayRecord struct {
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Date        string    `json:"date"`
	HourlyUV    []float64 `json:"hourlyUv"`
	HourlyCloud []float64 `json:"hourlyCloud"`
	MaxUV       float64   `json:"maxUv"`
	Sunrise     time.Time `json:"sunrise"`
	Sunset      time.Time `json:"sunset"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UVAt returns the cached UV index for the given hour of the day.
// Hours past the end of the series use the last sample.
func (r DayRecord) UVAt(hour int) float64 {
	return sampleAt(r.HourlyUV, hour)
}

// CloudAt returns the cached cloud cover percentage for the given hour.
func (r DayRecord) CloudAt(hour int) float64 {
	return sampleAt(r.HourlyCloud, hour)
}

func sampleAt(series []float64, hour int) float64 {
	if len(series) == 0 {
		return 0
	}
	if hour < 0 {
		hour = 0
	}
	if hour >= len(series) {
		hour = len(series) - 1
	}
	return math.Max(0, series[hour])
}

// RoundCoord rounds a coordinate to two decimals, the key precision.
func RoundCoord(v float64) float64 {
	return math.Round(v*100) / 100
}

// Within reports whether the written point lies inside the tolerance window
// of (lat, lon).
func (r DayRecord) Within(lat, lon, tolerance float64) bool {
	return math.Abs(r.Lat-lat) <= tolerance+coordEpsilon &&
		math.Abs(r.Lon-lon) <= tolerance+coordEpsilon
}

// key identifies a record by rounded coordinates and date.
type key struct {
	lat  float64
	lon  float64
	date string
}

func (r DayRecord) key() key {
	return key{lat: RoundCoord(r.Lat), lon: RoundCoord(r.Lon), date: r.Date}
}
