package envcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StoreConfig holds configuration for the cache store.
type StoreConfig struct {
	// Repository persists records. Required.
	Repository Repository

	// Logger for store operations.
	Logger zerolog.Logger

	// Tolerance is the lookup window in degrees (default: 0.01).
	Tolerance float64

	// RetentionDays is the prune cutoff applied after every Put (default: 7).
	RetentionDays int

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Store is the cache facade. Repository errors never reach callers: a failed
// write is a miss next time and a failed read is a miss now.
type Store struct {
	repo          Repository
	logger        zerolog.Logger
	tolerance     float64
	retentionDays int
	now           func() time.Time
}

// NewStore creates a new cache store.
func NewStore(cfg StoreConfig) *Store {
	tolerance := cfg.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	retention := cfg.RetentionDays
	if retention == 0 {
		retention = DefaultRetentionDays
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		repo:          cfg.Repository,
		logger:        cfg.Logger.With().Str("component", "envcache").Logger(),
		tolerance:     tolerance,
		retentionDays: retention,
		now:           now,
	}
}

// Put inserts or replaces the record with the same rounded key and prunes
// expired records. The unrounded point is kept for lookups.
func (s *Store) Put(ctx context.Context, rec DayRecord) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now()
	}

	if err := s.repo.Upsert(ctx, rec); err != nil {
		s.logger.Warn().Err(err).
			Float64("lat", rec.Lat).
			Float64("lon", rec.Lon).
			Str("date", rec.Date).
			Msg("failed to cache day record")
		return
	}

	s.Prune(ctx, s.retentionDays)
}

// Get returns records within the tolerance window of the point whose dates
// fall in the inclusive range [fromDate, toDate].
func (s *Store) Get(ctx context.Context, lat, lon float64, fromDate, toDate string) []DayRecord {
	records, err := s.repo.Find(ctx, Query{
		Lat:       lat,
		Lon:       lon,
		Tolerance: s.tolerance,
		FromDate:  fromDate,
		ToDate:    toDate,
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Float64("lat", lat).
			Float64("lon", lon).
			Msg("failed to read cached day records")
		return nil
	}
	return records
}

// GetDay returns the record for a single date, if any.
func (s *Store) GetDay(ctx context.Context, lat, lon float64, date string) (DayRecord, bool) {
	records := s.Get(ctx, lat, lon, date, date)
	if len(records) == 0 {
		return DayRecord{}, false
	}

	// Several keys can fall inside the window; prefer the nearest point.
	best := records[0]
	for _, rec := range records[1:] {
		if distance(rec, lat, lon) < distance(best, lat, lon) {
			best = rec
		}
	}
	return best, true
}

// Prune deletes records dated more than olderThanDays before today.
func (s *Store) Prune(ctx context.Context, olderThanDays int) {
	cutoff := s.now().AddDate(0, 0, -olderThanDays).Format(DateLayout)

	n, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Str("cutoff", cutoff).Msg("failed to prune day records")
		return
	}
	if n > 0 {
		s.logger.Debug().Int64("deleted", n).Str("cutoff", cutoff).Msg("pruned day records")
	}
}

func distance(rec DayRecord, lat, lon float64) float64 {
	dLat := rec.Lat - lat
	dLon := rec.Lon - lon
	return dLat*dLat + dLon*dLon
}
