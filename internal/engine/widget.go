package engine

import (
	"context"
	"time"

	"github.com/sundose/sundose/internal/dose"
	"github.com/sundose/sundose/internal/health"
	"github.com/sundose/sundose/internal/uv"
)

// Widget is the read-only companion projection.
type Widget struct {
	CurrentUV          float64   `json:"currentUv"`
	TodayTotalIU       float64   `json:"todayTotalIu"`
	Tracking           bool      `json:"tracking"`
	CurrentRate        float64   `json:"currentRate"`
	LocationLabel      string    `json:"locationLabel"`
	Altitude           float64   `json:"altitude"`
	AltitudeMultiplier float64   `json:"altitudeMultiplier"`
	CloudCover         float64   `json:"cloudCover"`
	MoonPhase          string    `json:"moonPhase"`
	Mode               uv.Mode   `json:"mode"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Widget recomputes and returns the companion projection.
func (e *Engine) Widget(ctx context.Context) (Widget, error) {
	var w Widget
	err := e.do(ctx, func() {
		e.publish(ctx)
		w = e.published
	})
	return w, err
}

// publish recomputes the widget projection and hands it to OnWidget.
// Today's total is the health store's dose since midnight in the location's
// zone plus the active session.
func (e *Engine) publish(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := e.localNow()
	res := e.uv.Current()
	view := e.acc.View()

	var today float64
	if e.health != nil {
		committed, err := e.health.DoseBetween(ctx, health.StartOfDay(now), now.Add(time.Second))
		if err != nil {
			e.logger.Debug().Err(err).Msg("health dose unavailable for widget")
		} else {
			today = committed
		}
	}
	if view.State == dose.StateTracking {
		today += view.Session.Dose
	}

	w := Widget{
		CurrentUV:          view.LastUV,
		TodayTotalIU:       today,
		Tracking:           view.State == dose.StateTracking,
		CurrentRate:        view.CurrentRate,
		AltitudeMultiplier: 1,
		CloudCover:         res.Snapshot.CloudCover,
		MoonPhase:          res.Moon.Name,
		Mode:               res.Mode,
		UpdatedAt:          now,
	}
	if !res.Snapshot.Empty() {
		w.AltitudeMultiplier = res.Snapshot.AltitudeMultiplier
	}
	if e.location != nil {
		w.LocationLabel = e.location.Label
		w.Altitude = e.location.AltitudeMeters()
	}

	e.published = w
	if e.onWidget != nil {
		e.onWidget(w)
	}
}
