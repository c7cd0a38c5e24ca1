// Package health is the health-store capability: optional physiological
// attributes and the history of committed vitamin D doses.
package health

import (
	"context"
	"errors"
	"time"

	"github.com/sundose/sundose/internal/dose"
)

// ErrUnavailable is returned when the health store cannot be reached or
// access was not granted. Callers fall back to manual values.
var ErrUnavailable = errors.New("health store unavailable")

// Sample is one committed dose.
type Sample struct {
	ID     string    `json:"id"`
	IU     float64   `json:"iu"`
	At     time.Time `json:"at"`
	Manual bool      `json:"manual"`
}

// DailyDose is the dose total for one local calendar day.
type DailyDose struct {
	Date string  `json:"date"`
	IU   float64 `json:"iu"`
}

// Store reads attributes and dose history and appends samples.
type Store interface {
	// SkinType returns the recorded skin type, if any.
	SkinType(ctx context.Context) (dose.SkinType, bool, error)

	// Age returns the user's age in years, if known.
	Age(ctx context.Context) (int, bool, error)

	// DoseBetween sums the samples in [from, to).
	DoseBetween(ctx context.Context, from, to time.Time) (float64, error)

	// DailyDoses returns per-day totals for the n days ending with now's
	// day, oldest first, in now's zone.
	DailyDoses(ctx context.Context, n int, now time.Time) ([]DailyDose, error)

	// AppendDose records a sample.
	AppendDose(ctx context.Context, s Sample) error
}

// StartOfDay returns local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SevenDayAverage returns the mean daily dose over the last seven days, or
// nil when there is no history at all.
func SevenDayAverage(ctx context.Context, store Store, now time.Time) (*float64, error) {
	days, err := store.DailyDoses(ctx, 7, now)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, d := range days {
		total += d.IU
	}
	if total == 0 || len(days) == 0 {
		return nil, nil
	}

	avg := total / float64(len(days))
	return &avg, nil
}

// bucketDaily groups samples into the n local days ending with now's day.
func bucketDaily(samples []Sample, n int, now time.Time) []DailyDose {
	if n <= 0 {
		return nil
	}

	loc := now.Location()
	first := StartOfDay(now).AddDate(0, 0, -(n - 1))

	out := make([]DailyDose, n)
	index := make(map[string]int, n)
	for i := 0; i < n; i++ {
		date := first.AddDate(0, 0, i).Format("2006-01-02")
		out[i] = DailyDose{Date: date}
		index[date] = i
	}

	for _, s := range samples {
		if i, ok := index[s.At.In(loc).Format("2006-01-02")]; ok {
			out[i].IU += s.IU
		}
	}
	return out
}
