package uv

import (
	"math"
	"time"

	"github.com/sundose/sundose/internal/dose"
)

// AltitudeMultiplier returns the UV increase for the altitude: +10% per 1000 m.
func AltitudeMultiplier(altitudeMeters float64) float64 {
	if altitudeMeters < 0 {
		altitudeMeters = 0
	}
	return 1 + (altitudeMeters/1000)*0.10
}

// Interpolate returns the value at minute within the hour at index i by
// linear interpolation towards index i+1. At the last index it returns the
// sample itself; it never extrapolates.
func Interpolate(series []float64, i int, minute float64) float64 {
	if len(series) == 0 {
		return 0
	}
	if i < 0 {
		i = 0
	}
	if i >= len(series)-1 {
		return math.Max(0, series[len(series)-1])
	}

	a, b := series[i], series[i+1]
	factor := math.Min(math.Max(minute/60, 0), 1)
	return math.Max(0, a+(b-a)*factor)
}

// hourIndex finds the sample for the hour containing now. It falls back to
// the local hour of day when the series has no matching timestamp.
func hourIndex(samples []HourlySample, now time.Time) int {
	hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	for i, s := range samples {
		if s.Time.Equal(hour) {
			return i
		}
	}
	return now.Hour()
}

// BurnTimes returns minutes to one MED for every skin type at uv.
func BurnTimes(uv float64) map[dose.SkinType]float64 {
	out := make(map[dose.SkinType]float64, len(dose.SkinTypes))
	for _, st := range dose.SkinTypes {
		out[st] = st.BurnTimeMinutes(uv)
	}
	return out
}

// VitaminDWinter reports whether synthesis is negligible: at latitudes above
// 35° from November through February, in March and October only when the max
// UV is below 3, and at lower latitudes whenever the max UV is below 3.
func VitaminDWinter(lat float64, month time.Month, maxUV float64) bool {
	if math.Abs(lat) <= 35 {
		return maxUV < 3
	}

	switch month {
	case time.November, time.December, time.January, time.February:
		return true
	case time.March, time.October:
		return maxUV < 3
	default:
		return false
	}
}
