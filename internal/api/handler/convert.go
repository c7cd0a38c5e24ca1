package handler

import (
	"strconv"
	"time"

	"github.com/sundose/sundose/internal/api/models"
	"github.com/sundose/sundose/internal/dose"
	"github.com/sundose/sundose/internal/engine"
	"github.com/sundose/sundose/internal/uv"
)

func uvReport(res uv.Result) models.UVReport {
	s := res.Snapshot
	report := models.UVReport{
		Mode:               string(res.Mode),
		Offline:            res.Offline,
		HasNoData:          res.HasNoData,
		Lat:                s.Location.Lat,
		Lon:                s.Location.Lon,
		Altitude:           s.Location.AltitudeMeters(),
		LocationLabel:      s.Location.Label,
		CurrentUV:          s.CurrentUV,
		TodayMaxUV:         s.TodayMaxUV,
		TomorrowMaxUV:      s.TomorrowMaxUV,
		TodayClearSkyMaxUV: s.TodayClearSkyMaxUV,
		AltitudeMultiplier: s.AltitudeMultiplier,
		CloudCover:         s.CloudCover,
		VitaminDWinter:     s.VitaminDWinter,
		HourlyUV:           nonNil(s.HourlyUV),
		HourlyCloud:        nonNil(s.HourlyCloud),
		Today:              sunTimes(s.TodaySunrise, s.TodaySunset, false),
		Tomorrow:           sunTimes(s.TomorrowSunrise, s.TomorrowSunset, false),
		BurnMinutes:        make(map[string]float64, len(s.BurnTimes)),
		MoonPhase:          res.Moon.Name,
		MoonIllumination:   res.Moon.Illumination,
		Source:             string(s.Source),
		UpdatedAt:          models.TimestampPtr(s.Timestamp),
	}
	for st, minutes := range s.BurnTimes {
		report.BurnMinutes[strconv.Itoa(int(st))] = minutes
	}
	if res.SunEstimate != nil {
		est := sunTimes(res.SunEstimate.Sunrise, res.SunEstimate.Sunset, res.SunEstimate.Estimated)
		report.Estimate = &est
	}
	return report
}

func sunTimes(sunrise, sunset time.Time, estimated bool) models.SunTimes {
	return models.SunTimes{
		Sunrise:   models.TimestampPtr(sunrise),
		Sunset:    models.TimestampPtr(sunset),
		Estimated: estimated,
	}
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func profileModel(p dose.Profile) models.Profile {
	return models.Profile{
		SkinType:            int(p.SkinType),
		Clothing:            string(p.Clothing),
		ClothingDescription: p.Clothing.Description(),
		Sunscreen:           string(p.Sunscreen),
		Age:                 p.Age,
		SevenDayAverageIU:   p.SevenDayAverage,
		SkinTypeFromHealth:  p.SkinTypeFromHealth,
		AgeFromHealth:       p.AgeFromHealth,
	}
}

func sessionModel(v dose.View) models.Session {
	out := models.Session{
		State:       string(v.State),
		DoseIU:      v.Session.Dose,
		MEDFraction: v.Session.MEDFraction,
		LastUV:      v.LastUV,
		CurrentRate: v.CurrentRate,
		BurnWarned:  v.BurnWarned,
		Running:     v.Running,
	}
	if v.State == dose.StateTracking {
		out.ID = v.Session.ID
		out.StartedAt = models.TimestampPtr(v.Session.StartedAt)
	}
	return out
}

// endedSessionModel describes a session returned by StopTracking.
func endedSessionModel(s dose.Session) models.Session {
	return models.Session{
		State:       string(dose.StateIdle),
		ID:          s.ID,
		StartedAt:   models.TimestampPtr(s.StartedAt),
		DoseIU:      s.Dose,
		MEDFraction: s.MEDFraction,
		LastUV:      s.LastUV,
	}
}

func widgetModel(w engine.Widget) models.Widget {
	return models.Widget{
		CurrentUV:          w.CurrentUV,
		TodayTotalIU:       w.TodayTotalIU,
		Tracking:           w.Tracking,
		CurrentRate:        w.CurrentRate,
		LocationLabel:      w.LocationLabel,
		Altitude:           w.Altitude,
		AltitudeMultiplier: w.AltitudeMultiplier,
		CloudCover:         w.CloudCover,
		MoonPhase:          w.MoonPhase,
		Mode:               string(w.Mode),
		UpdatedAt:          models.TimestampPtr(w.UpdatedAt),
	}
}
