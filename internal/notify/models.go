// Package notify schedules local alerts for sunrise, sunset and the burn
// threshold, and delivers them to a sink.
package notify

import (
	"context"
	"time"
)

// Kind identifies the alert type. At most one alert per kind is pending.
type Kind string

const (
	KindSunrise     Kind = "sunrise"
	KindSunset      Kind = "sunset"
	KindBurnWarning Kind = "burn_warning"
)

// Notification is one alert.
type Notification struct {
	ID    string    `json:"id"`
	Kind  Kind      `json:"kind"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// Scheduler holds pending alerts until they are due.
type Scheduler interface {
	// Schedule registers n, replacing any pending alert of the same kind.
	// Alerts not in the future are delivered immediately.
	Schedule(ctx context.Context, n Notification) error

	// Cancel drops the pending alert of the given kind, if any.
	Cancel(kind Kind)
}

// Sink renders or forwards a due alert.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// MarkerStore persists the date sun events were last scheduled.
type MarkerStore interface {
	NotificationMarker(ctx context.Context) (string, error)
	SaveNotificationMarker(ctx context.Context, date string) error
}
