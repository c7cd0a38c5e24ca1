package uv

import (
	"context"
	"fmt"
)

// Warm fetches the forecast for loc and writes it to the cache without
// publishing a snapshot. Unlike Fetch it reports provider failures, and it
// does not change the retry location.
func (s *Service) Warm(ctx context.Context, loc Location) (int, error) {
	if err := loc.Validate(); err != nil {
		return 0, err
	}

	ctx, span := s.tracer.Start(ctx, "uv.Warm")
	defer span.End()

	start := s.now()
	forecast, err := s.provider.Forecast(ctx, loc)
	s.metrics.RecordFetch(ctx, s.provider.Name(), s.now().Sub(start), err)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("warm %.4f,%.4f: %w", loc.Lat, loc.Lon, err)
	}

	records := dayRecords(loc, forecast)
	for _, rec := range records {
		s.cache.Put(ctx, rec)
	}
	return len(records), nil
}
