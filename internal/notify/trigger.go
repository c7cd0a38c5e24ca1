package notify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TriggerConfig holds configuration for a Trigger.
type TriggerConfig struct {
	Scheduler Scheduler
	Markers   MarkerStore
	Logger    zerolog.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Trigger decides which alerts to schedule. Sunrise and sunset alerts are
// scheduled at most once per calendar day and only for future instants.
type Trigger struct {
	scheduler Scheduler
	markers   MarkerStore
	logger    zerolog.Logger
	now       func() time.Time
}

// NewTrigger creates a new notification trigger.
func NewTrigger(cfg TriggerConfig) *Trigger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Trigger{
		scheduler: cfg.Scheduler,
		markers:   cfg.Markers,
		logger:    cfg.Logger.With().Str("component", "notify").Logger(),
		now:       cfg.Now,
	}
}

// ScheduleSunEvents schedules today's sunrise and sunset alerts. It returns
// the number of alerts scheduled; zero when today's events were already
// handled or both instants have passed.
func (t *Trigger) ScheduleSunEvents(ctx context.Context, sunrise, sunset time.Time) (int, error) {
	now := t.now()
	zone := now.Location()
	if !sunrise.IsZero() {
		zone = sunrise.Location()
	}
	today := now.In(zone).Format("2006-01-02")

	if t.markers != nil {
		marker, err := t.markers.NotificationMarker(ctx)
		if err != nil {
			t.logger.Warn().Err(err).Msg("failed to read notification marker")
		} else if marker == today {
			return 0, nil
		}
	}

	events := []Notification{
		{Kind: KindSunrise, Title: "Sunrise", Body: "The sun is up. UV will start rising soon.", At: sunrise},
		{Kind: KindSunset, Title: "Sunset", Body: "The sun is setting. Vitamin D synthesis has ended for today.", At: sunset},
	}

	scheduled := 0
	for _, n := range events {
		if n.At.IsZero() || !n.At.After(now) {
			continue
		}
		n.ID = uuid.New().String()
		if err := t.scheduler.Schedule(ctx, n); err != nil {
			return scheduled, fmt.Errorf("scheduling %s: %w", n.Kind, err)
		}
		scheduled++
	}

	if t.markers != nil {
		if err := t.markers.SaveNotificationMarker(ctx, today); err != nil {
			t.logger.Warn().Err(err).Msg("failed to save notification marker")
		}
	}

	t.logger.Debug().
		Int("scheduled", scheduled).
		Str("date", today).
		Msg("sun events scheduled")

	return scheduled, nil
}

// BurnWarning delivers the burn-threshold alert immediately.
func (t *Trigger) BurnWarning(ctx context.Context, medFraction float64) error {
	n := Notification{
		ID:    uuid.New().String(),
		Kind:  KindBurnWarning,
		Title: "Burn risk",
		Body: fmt.Sprintf("You have reached %d%% of your burn threshold. Consider seeking shade.",
			int(math.Round(medFraction*100))),
		At: t.now(),
	}

	if err := t.scheduler.Schedule(ctx, n); err != nil {
		return fmt.Errorf("delivering burn warning: %w", err)
	}
	return nil
}

// CancelSunEvents drops pending sunrise and sunset alerts and clears the
// day marker, so the next ScheduleSunEvents call schedules again.
func (t *Trigger) CancelSunEvents(ctx context.Context) {
	t.scheduler.Cancel(KindSunrise)
	t.scheduler.Cancel(KindSunset)

	if t.markers == nil {
		return
	}
	if err := t.markers.SaveNotificationMarker(ctx, ""); err != nil {
		t.logger.Warn().Err(err).Msg("failed to clear notification marker")
	}
}
