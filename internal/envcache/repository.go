package envcache

import "context"

// Query selects records near a point over an inclusive date range.
type Query struct {
	Lat       float64
	Lon       float64
	Tolerance float64
	FromDate  string
	ToDate    string
}

// Repository defines the interface for day record persistence.
type Repository interface {
	// Upsert inserts a record or replaces the one with the same
	// (rounded lat, rounded lon, date) key.
	Upsert(ctx context.Context, rec DayRecord) error

	// Find returns records within the query's tolerance and date range,
	// ordered by date.
	Find(ctx context.Context, q Query) ([]DayRecord, error)

	// DeleteBefore removes records dated strictly before cutoff and
	// returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff string) (int64, error)
}
