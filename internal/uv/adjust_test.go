package uv_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundose/sundose/internal/dose"
	"github.com/sundose/sundose/internal/uv"
)

func TestInterpolate(t *testing.T) {
	series := []float64{0, 2, 6, 7}

	assert.InDelta(t, 6.5, uv.Interpolate(series, 2, 30), 1e-12)
	assert.InDelta(t, 6.0, uv.Interpolate(series, 2, 0), 1e-12)
	assert.InDelta(t, 1.0, uv.Interpolate(series, 0, 30), 1e-12)

	// Decreasing segment stays between the bounding values.
	down := []float64{8, 4}
	v := uv.Interpolate(down, 0, 45)
	assert.InDelta(t, 5.0, v, 1e-12)

	// No extrapolation past the last sample.
	assert.Equal(t, 7.0, uv.Interpolate(series, 3, 59))
	assert.Equal(t, 7.0, uv.Interpolate(series, 10, 30))

	assert.Equal(t, 0.0, uv.Interpolate(nil, 0, 30))
}

func TestInterpolate_Bounded(t *testing.T) {
	series := []float64{1, 9, 3, 3, 0, 11}
	for i := 0; i < len(series); i++ {
		for m := 0; m < 60; m++ {
			v := uv.Interpolate(series, i, float64(m))
			lo, hi := series[i], series[i]
			if i+1 < len(series) {
				lo = min(series[i], series[i+1])
				hi = max(series[i], series[i+1])
			}
			assert.GreaterOrEqual(t, v, lo)
			assert.LessOrEqual(t, v, hi)
		}
	}
}

func TestAltitudeMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, uv.AltitudeMultiplier(0))
	assert.Equal(t, 1.0, uv.AltitudeMultiplier(-50))
	assert.InDelta(t, 1.1, uv.AltitudeMultiplier(1000), 1e-12)
	assert.InDelta(t, 1.35, uv.AltitudeMultiplier(3500), 1e-12)

	neg := -12.0
	assert.Equal(t, 0.0, uv.Location{Altitude: &neg}.AltitudeMeters())
	assert.Equal(t, 0.0, uv.Location{}.AltitudeMeters())
}

func TestBurnTimes(t *testing.T) {
	times := uv.BurnTimes(5)
	require.Len(t, times, 6)
	assert.InDelta(t, 30.0, times[dose.SkinType1], 1e-9)
	assert.InDelta(t, 220.0, times[dose.SkinType6], 1e-9)
}

func TestVitaminDWinter(t *testing.T) {
	tests := []struct {
		name  string
		lat   float64
		month time.Month
		maxUV float64
		want  bool
	}{
		{"north winter", 52.4, time.December, 1, true},
		{"south winter month", -45, time.January, 9, true},
		{"north march low uv", 52.4, time.March, 2.5, true},
		{"north october high uv", 40, time.October, 3.5, false},
		{"north summer", 52.4, time.June, 2, false},
		{"boundary latitude uses low-latitude rule", 35, time.December, 5, false},
		{"tropics low uv", 10, time.July, 2.9, true},
		{"tropics high uv", -10, time.January, 11, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uv.VitaminDWinter(tt.lat, tt.month, tt.maxUV))
		})
	}
}

func TestComputeMoonPhase(t *testing.T) {
	newMoon := uv.ComputeMoonPhase(time.Date(2000, time.January, 6, 18, 14, 0, 0, time.UTC))
	assert.Equal(t, "New Moon", newMoon.Name)
	assert.InDelta(t, 0, newMoon.Illumination, 1e-9)

	full := uv.ComputeMoonPhase(time.Date(2000, time.January, 6, 18, 14, 0, 0, time.UTC).Add(time.Duration(14.765 * 24 * float64(time.Hour))))
	assert.Equal(t, "Full Moon", full.Name)
	assert.InDelta(t, 1, full.Illumination, 1e-6)

	before := uv.ComputeMoonPhase(time.Date(2000, time.January, 4, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "Waning Crescent", before.Name)
}

func TestEstimateSunTimes(t *testing.T) {
	day := time.Date(2026, 6, 21, 0, 0, 0, 0, pdt)

	est, ok := uv.EstimateSunTimes(37.7749, -122.4194, day)
	require.True(t, ok)
	assert.True(t, est.Estimated)

	actualSunrise := time.Date(2026, 6, 21, 5, 48, 0, 0, pdt)
	actualSunset := time.Date(2026, 6, 21, 20, 35, 0, 0, pdt)
	assert.WithinDuration(t, actualSunrise, est.Sunrise, 15*time.Minute)
	assert.WithinDuration(t, actualSunset, est.Sunset, 15*time.Minute)

	// Polar day.
	_, ok = uv.EstimateSunTimes(80, 15, time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}
