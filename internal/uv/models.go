// Package uv produces UV snapshots for a location: it fetches the forecast,
// adjusts it for altitude, interpolates to the current minute and falls back
// to the environmental cache when the network is unavailable.
package uv

import (
	"errors"
	"time"

	"github.com/sundose/sundose/internal/dose"
)

// UV errors.
var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrNoLocation         = errors.New("no location to fetch")
	ErrDecode             = errors.New("forecast response missing required fields")
)

// Location is a location fix.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	// Altitude in meters. Nil or negative means sea level.
	Altitude *float64 `json:"altitude,omitempty"`

	Label string `json:"label,omitempty"`
}

// AltitudeMeters returns the altitude used for adjustment, never negative.
func (l Location) AltitudeMeters() float64 {
	if l.Altitude == nil || *l.Altitude < 0 {
		return 0
	}
	return *l.Altitude
}

// Validate checks the coordinate ranges.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 || l.Lon < -180 || l.Lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Mode describes where the published snapshot came from.
type Mode string

const (
	// ModeLive means the snapshot came from a successful fetch.
	ModeLive Mode = "live"

	// ModeOffline means the network is unavailable and the snapshot is
	// either cached data or the last live data, still displayed.
	ModeOffline Mode = "offline"

	// ModeNoData means the fetch failed and nothing was cached for the
	// location. The previous snapshot is left untouched.
	ModeNoData Mode = "no_data"
)

// Source identifies how a snapshot was built.
type Source string

const (
	SourceForecast Source = "forecast"
	SourceCache    Source = "cache"
)

// Snapshot is the UV state for a location at an instant.
type Snapshot struct {
	Location  Location  `json:"location"`
	Timestamp time.Time `json:"timestamp"`

	// CurrentUV is interpolated and altitude-adjusted.
	CurrentUV     float64 `json:"currentUv"`
	TodayMaxUV    float64 `json:"todayMaxUv"`
	TomorrowMaxUV float64 `json:"tomorrowMaxUv"`

	// TodayClearSkyMaxUV is the cloudless maximum, altitude-adjusted.
	TodayClearSkyMaxUV float64 `json:"todayClearSkyMaxUv"`

	// HourlyUV and HourlyCloud start at local midnight of the snapshot's day
	// and are not altitude-adjusted.
	HourlyUV    []float64 `json:"hourlyUv"`
	HourlyCloud []float64 `json:"hourlyCloud"`

	TodaySunrise    time.Time `json:"todaySunrise"`
	TodaySunset     time.Time `json:"todaySunset"`
	TomorrowSunrise time.Time `json:"tomorrowSunrise"`
	TomorrowSunset  time.Time `json:"tomorrowSunset"`

	AltitudeMultiplier float64 `json:"altitudeMultiplier"`
	CloudCover         float64 `json:"cloudCover"`
	VitaminDWinter     bool    `json:"vitaminDWinter"`

	// BurnTimes holds minutes to one MED at CurrentUV per skin type.
	BurnTimes map[dose.SkinType]float64 `json:"burnTimes"`

	Source    Source    `json:"source"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Empty reports whether the snapshot was never populated.
func (s Snapshot) Empty() bool {
	return s.Timestamp.IsZero()
}

// SunTimes is a pair of sun events, possibly estimated.
type SunTimes struct {
	Sunrise   time.Time `json:"sunrise"`
	Sunset    time.Time `json:"sunset"`
	Estimated bool      `json:"estimated"`
}

// MoonPhase is the decorative moon phase shown alongside the UV data.
type MoonPhase struct {
	Name         string    `json:"name"`
	Illumination float64   `json:"illumination"`
	ComputedAt   time.Time `json:"computedAt,omitempty"`
}

// Result is the outcome of a fetch.
type Result struct {
	Snapshot  Snapshot `json:"snapshot"`
	Mode      Mode     `json:"mode"`
	Offline   bool     `json:"offline"`
	HasNoData bool     `json:"hasNoData"`

	// SunEstimate is set in no-data mode when the sun events could be
	// estimated from the coordinates.
	SunEstimate *SunTimes `json:"sunEstimate,omitempty"`

	Moon MoonPhase `json:"moon"`
}

// Forecast is a provider response in domain form. Times carry the
// location's UTC offset.
type Forecast struct {
	Lat       float64
	Lon       float64
	Elevation float64
	Timezone  string
	Location  *time.Location
	Daily     []DailyForecast
	Hourly    []HourlySample
	FetchedAt time.Time
}

// DailyForecast is one forecast day.
type DailyForecast struct {
	Date          string
	UVMax         float64
	UVClearSkyMax float64
	Sunrise       time.Time
	Sunset        time.Time
}

// HourlySample is one hourly forecast value.
type HourlySample struct {
	Time       time.Time
	UV         float64
	CloudCover float64
}
