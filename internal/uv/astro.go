package uv

import (
	"math"
	"time"
)

const (
	synodicMonthDays = 29.530588853

	// moonRefreshInterval bounds how often the moon phase is recomputed.
	moonRefreshInterval = 6 * time.Hour
)

// referenceNewMoon is the new moon of 2000-01-06 18:14 UTC.
var referenceNewMoon = time.Date(2000, time.January, 6, 18, 14, 0, 0, time.UTC)

// PlaceholderMoon is shown until the phase has been computed once.
var PlaceholderMoon = MoonPhase{Name: "Full Moon", Illumination: 1}

var moonPhaseNames = [...]string{
	"New Moon",
	"Waxing Crescent",
	"First Quarter",
	"Waxing Gibbous",
	"Full Moon",
	"Waning Gibbous",
	"Last Quarter",
	"Waning Crescent",
}

// ComputeMoonPhase returns the moon phase at t from the mean synodic cycle.
func ComputeMoonPhase(t time.Time) MoonPhase {
	days := t.Sub(referenceNewMoon).Hours() / 24
	age := math.Mod(days, synodicMonthDays)
	if age < 0 {
		age += synodicMonthDays
	}
	fraction := age / synodicMonthDays

	// Eight phases centred on their nominal fraction.
	idx := int(math.Floor(fraction*8+0.5)) % 8

	return MoonPhase{
		Name:         moonPhaseNames[idx],
		Illumination: (1 - math.Cos(2*math.Pi*fraction)) / 2,
		ComputedAt:   t,
	}
}

// EstimateSunTimes approximates sunrise and sunset for the date of day at
// the coordinates. Solar noon is taken as 12:00 mean solar time and the
// declination from a cosine fit, so results can be off by several minutes.
// It returns false during polar day or night.
func EstimateSunTimes(lat, lon float64, day time.Time) (SunTimes, bool) {
	loc := day.Location()
	midnightUTC := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	n := float64(day.YearDay())
	decl := degToRad(23.44) * math.Sin(2*math.Pi*(284+n)/365)
	phi := degToRad(lat)

	// Hour angle at which the sun's centre is 0.833° below the horizon.
	cosH := (math.Sin(degToRad(-0.833)) - math.Sin(phi)*math.Sin(decl)) / (math.Cos(phi) * math.Cos(decl))
	if cosH < -1 || cosH > 1 {
		return SunTimes{}, false
	}
	halfDayHours := radToDeg(math.Acos(cosH)) / 15

	noonUTCHours := 12 - lon/15
	sunrise := midnightUTC.Add(hoursToDuration(noonUTCHours - halfDayHours))
	sunset := midnightUTC.Add(hoursToDuration(noonUTCHours + halfDayHours))

	return SunTimes{
		Sunrise:   sunrise.In(loc),
		Sunset:    sunset.In(loc),
		Estimated: true,
	}, true
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }

func radToDeg(r float64) float64 { return r * 180 / math.Pi }

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
