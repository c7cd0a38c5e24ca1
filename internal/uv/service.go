package uv

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sundose/sundose/internal/envcache"
	"github.com/sundose/sundose/internal/telemetry"
)

// Provider defines the interface for UV forecast providers.
type Provider interface {
	// Forecast fetches two days of daily and hourly data for a location.
	// Any transport or decoding failure is returned as an error.
	Forecast(ctx context.Context, loc Location) (*Forecast, error)

	// Name returns the provider name for logging.
	Name() string
}

// DefaultMinRefreshInterval is the minimum time between time-gated refetches.
const DefaultMinRefreshInterval = 5 * time.Minute

// ServiceConfig holds configuration for the UV service.
type ServiceConfig struct {
	// Provider is the forecast source. Required.
	Provider Provider

	// Cache stores successful fetches and serves the offline fallback. Required.
	Cache *envcache.Store

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records fetches and cache fallbacks (optional).
	Metrics *telemetry.PipelineMetrics

	// MinRefreshInterval gates ShouldRefresh (default: 5 minutes).
	MinRefreshInterval time.Duration

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Service is the UV pipeline. It keeps the last published result, the last
// retry location and the moon phase.
type Service struct {
	provider           Provider
	cache              *envcache.Store
	logger             zerolog.Logger
	metrics            *telemetry.PipelineMetrics
	tracer             trace.Tracer
	minRefreshInterval time.Duration
	now                func() time.Time

	mu            sync.RWMutex
	result        Result
	retryLocation *Location
	lastSuccessAt time.Time
	lastAttemptAt time.Time
	zone          *time.Location
}

// NewService creates a new UV service in no-data mode.
func NewService(cfg ServiceConfig) *Service {
	minRefresh := cfg.MinRefreshInterval
	if minRefresh == 0 {
		minRefresh = DefaultMinRefreshInterval
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		provider:           cfg.Provider,
		cache:              cfg.Cache,
		logger:             cfg.Logger.With().Str("component", "uv").Logger(),
		metrics:            cfg.Metrics,
		tracer:             telemetry.Tracer("github.com/sundose/sundose/internal/uv"),
		minRefreshInterval: minRefresh,
		now:                now,
		result: Result{
			Mode:      ModeNoData,
			Offline:   false,
			HasNoData: true,
			Moon:      PlaceholderMoon,
		},
	}
}

// Fetch produces a snapshot for loc. Network and decoding failures are not
// returned: they select the cache fallback or no-data mode. The only error
// is ErrInvalidCoordinates.
func (s *Service) Fetch(ctx context.Context, loc Location) (Result, error) {
	if err := loc.Validate(); err != nil {
		return s.Current(), err
	}

	ctx, span := s.tracer.Start(ctx, "uv.Fetch", trace.WithAttributes(
		attribute.Float64("location.lat", loc.Lat),
		attribute.Float64("location.lon", loc.Lon),
	))
	defer span.End()

	s.mu.Lock()
	retry := loc
	s.retryLocation = &retry
	s.lastAttemptAt = s.now()
	s.mu.Unlock()

	start := s.now()
	forecast, err := s.provider.Forecast(ctx, loc)
	s.metrics.RecordFetch(ctx, s.provider.Name(), s.now().Sub(start), err)

	var result Result
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forecast fetch failed")
		s.logger.Warn().Err(err).
			Float64("lat", loc.Lat).
			Float64("lon", loc.Lon).
			Str("provider", s.provider.Name()).
			Msg("forecast fetch failed, falling back to cache")
		result = s.fallback(ctx, loc)
	} else {
		result = s.publishForecast(ctx, loc, forecast)
	}

	span.SetAttributes(attribute.String("uv.mode", string(result.Mode)))
	return result, nil
}

// Retry re-fetches the last retry location.
func (s *Service) Retry(ctx context.Context) (Result, error) {
	loc, ok := s.RetryLocation()
	if !ok {
		return s.Current(), ErrNoLocation
	}
	return s.Fetch(ctx, loc)
}

// RetryLocation returns the location of the most recent fetch attempt.
func (s *Service) RetryLocation() (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.retryLocation == nil {
		return Location{}, false
	}
	return *s.retryLocation, true
}

// SetRetryLocation seeds the retry location, e.g. from the last known
// location persisted before a restart.
func (s *Service) SetRetryLocation(loc Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryLocation = &loc
}

// ShouldRefresh reports whether enough time passed since the last successful
// fetch for a time-gated refetch.
func (s *Service) ShouldRefresh(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastSuccessAt.IsZero() {
		return true
	}
	return now.Sub(s.lastSuccessAt) >= s.minRefreshInterval
}

// AttemptDue reports whether the refresh interval has passed since the last
// fetch attempt, successful or not.
func (s *Service) AttemptDue(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastAttemptAt.IsZero() {
		return true
	}
	return now.Sub(s.lastAttemptAt) >= s.minRefreshInterval
}

// LastSuccessAt returns the time of the last successful fetch.
func (s *Service) LastSuccessAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSuccessAt
}

// SetLastSuccessAt restores the last successful fetch time after a restart.
func (s *Service) SetLastSuccessAt(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSuccessAt = t
}

// Current returns the last published result.
func (s *Service) Current() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// MarkOffline sets the offline flag without touching the displayed data.
// It has no effect in no-data mode.
func (s *Service) MarkOffline() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result.Mode == ModeNoData {
		return
	}
	s.result.Mode = ModeOffline
	s.result.Offline = true
}

// MarkOnline clears the offline flag. The mode changes on the next fetch.
func (s *Service) MarkOnline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.Offline = false
}

// publishForecast builds a live snapshot, writes the days to the cache and
// publishes the result.
func (s *Service) publishForecast(ctx context.Context, loc Location, f *Forecast) Result {
	zone := f.Location
	if zone == nil {
		zone = time.UTC
	}
	now := s.now().In(zone)
	multiplier := AltitudeMultiplier(loc.AltitudeMeters())

	hourlyUV := make([]float64, len(f.Hourly))
	hourlyCloud := make([]float64, len(f.Hourly))
	for i, h := range f.Hourly {
		hourlyUV[i] = h.UV
		hourlyCloud[i] = h.CloudCover
	}

	idx := hourIndex(f.Hourly, now)
	current := Interpolate(hourlyUV, idx, float64(now.Minute())) * multiplier

	snap := Snapshot{
		Location:           loc,
		Timestamp:          now,
		CurrentUV:          current,
		HourlyUV:           hourlyUV,
		HourlyCloud:        hourlyCloud,
		AltitudeMultiplier: multiplier,
		CloudCover:         sampleCloud(hourlyCloud, idx),
		BurnTimes:          BurnTimes(current),
		Source:             SourceForecast,
		FetchedAt:          f.FetchedAt,
	}

	if len(f.Daily) > 0 {
		today := f.Daily[0]
		snap.TodayMaxUV = today.UVMax * multiplier
		snap.TodayClearSkyMaxUV = today.UVClearSkyMax * multiplier
		snap.TodaySunrise = today.Sunrise
		snap.TodaySunset = today.Sunset
	}
	if len(f.Daily) > 1 {
		tomorrow := f.Daily[1]
		snap.TomorrowMaxUV = tomorrow.UVMax * multiplier
		snap.TomorrowSunrise = tomorrow.Sunrise
		snap.TomorrowSunset = tomorrow.Sunset
	}
	snap.VitaminDWinter = VitaminDWinter(loc.Lat, now.Month(), snap.TodayMaxUV)

	for _, rec := range dayRecords(loc, f) {
		s.cache.Put(ctx, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSuccessAt = s.now()
	s.zone = zone
	s.result = Result{
		Snapshot: snap,
		Mode:     ModeLive,
		Moon:     s.refreshMoonLocked(),
	}

	s.logger.Debug().
		Float64("current_uv", snap.CurrentUV).
		Float64("max_uv", snap.TodayMaxUV).
		Float64("altitude_multiplier", multiplier).
		Msg("published live uv snapshot")

	return s.result
}

// fallback serves the cached record for today, or switches to no-data mode
// leaving the previous snapshot untouched.
func (s *Service) fallback(ctx context.Context, loc Location) Result {
	base := s.now()

	s.mu.RLock()
	zone := s.zone
	s.mu.RUnlock()
	if zone == nil {
		zone = base.Location()
	}

	// The location's offset is only known from a record, so widen the
	// range by a day either side and select by each record's own zone.
	records := s.cache.Get(ctx, loc.Lat, loc.Lon,
		base.AddDate(0, 0, -1).Format(envcache.DateLayout),
		base.AddDate(0, 0, 2).Format(envcache.DateLayout),
	)

	today, tomorrow, ok := selectDays(records, base, zone)
	s.metrics.RecordCacheLookup(ctx, ok)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok {
		s.result.Mode = ModeNoData
		s.result.Offline = true
		s.result.HasNoData = true
		s.result.SunEstimate = nil
		if est, ok := EstimateSunTimes(loc.Lat, loc.Lon, base.In(zone)); ok {
			s.result.SunEstimate = &est
		}
		s.logger.Info().
			Float64("lat", loc.Lat).
			Float64("lon", loc.Lon).
			Msg("no cached uv data for location")
		return s.result
	}

	recZone := recordZone(today, zone)
	now := base.In(recZone)
	multiplier := AltitudeMultiplier(loc.AltitudeMeters())
	current := today.UVAt(now.Hour()) * multiplier

	hourlyUV := append([]float64(nil), today.HourlyUV...)
	hourlyCloud := append([]float64(nil), today.HourlyCloud...)

	snap := Snapshot{
		Location:           loc,
		Timestamp:          now,
		CurrentUV:          current,
		TodayMaxUV:         today.MaxUV * multiplier,
		HourlyUV:           hourlyUV,
		HourlyCloud:        hourlyCloud,
		TodaySunrise:       today.Sunrise,
		TodaySunset:        today.Sunset,
		AltitudeMultiplier: multiplier,
		CloudCover:         today.CloudAt(now.Hour()),
		BurnTimes:          BurnTimes(current),
		Source:             SourceCache,
		FetchedAt:          today.UpdatedAt,
	}
	if tomorrow != nil {
		snap.TomorrowMaxUV = tomorrow.MaxUV * multiplier
		snap.TomorrowSunrise = tomorrow.Sunrise
		snap.TomorrowSunset = tomorrow.Sunset
		snap.HourlyUV = append(snap.HourlyUV, tomorrow.HourlyUV...)
		snap.HourlyCloud = append(snap.HourlyCloud, tomorrow.HourlyCloud...)
	}
	snap.VitaminDWinter = VitaminDWinter(loc.Lat, now.Month(), snap.TodayMaxUV)

	s.result = Result{
		Snapshot: snap,
		Mode:     ModeOffline,
		Offline:  true,
		Moon:     s.result.Moon,
	}

	s.logger.Info().
		Str("date", today.Date).
		Float64("current_uv", current).
		Msg("serving cached uv data")

	return s.result
}

// refreshMoonLocked recomputes the moon phase at most every six hours.
func (s *Service) refreshMoonLocked() MoonPhase {
	now := s.now()
	moon := s.result.Moon
	if moon.ComputedAt.IsZero() || now.Sub(moon.ComputedAt) >= moonRefreshInterval {
		moon = ComputeMoonPhase(now)
	}
	return moon
}

// dayRecords splits a forecast into one cache record per day.
func dayRecords(loc Location, f *Forecast) []envcache.DayRecord {
	records := make([]envcache.DayRecord, 0, len(f.Daily))
	for _, d := range f.Daily {
		rec := envcache.DayRecord{
			Lat:     loc.Lat,
			Lon:     loc.Lon,
			Date:    d.Date,
			MaxUV:   d.UVMax,
			Sunrise: d.Sunrise,
			Sunset:  d.Sunset,
		}
		for _, h := range f.Hourly {
			if h.Time.Format(envcache.DateLayout) == d.Date {
				rec.HourlyUV = append(rec.HourlyUV, h.UV)
				rec.HourlyCloud = append(rec.HourlyCloud, h.CloudCover)
			}
		}
		records = append(records, rec)
	}
	return records
}

// selectDays picks today's and tomorrow's records, where "today" is judged
// in each record's own zone.
func selectDays(records []envcache.DayRecord, now time.Time, fallbackZone *time.Location) (envcache.DayRecord, *envcache.DayRecord, bool) {
	var (
		today    envcache.DayRecord
		found    bool
		tomorrow *envcache.DayRecord
	)

	for i := range records {
		local := now.In(recordZone(records[i], fallbackZone))
		if records[i].Date == local.Format(envcache.DateLayout) {
			today = records[i]
			found = true
			break
		}
	}
	if !found {
		return envcache.DayRecord{}, nil, false
	}

	next := now.In(recordZone(today, fallbackZone)).AddDate(0, 0, 1).Format(envcache.DateLayout)
	for i := range records {
		if records[i].Date == next {
			rec := records[i]
			tomorrow = &rec
			break
		}
	}
	return today, tomorrow, true
}

// recordZone returns the UTC offset a record was cached with.
func recordZone(rec envcache.DayRecord, fallback *time.Location) *time.Location {
	if !rec.Sunrise.IsZero() {
		return rec.Sunrise.Location()
	}
	return fallback
}

func sampleCloud(series []float64, i int) float64 {
	if len(series) == 0 {
		return 0
	}
	if i >= len(series) {
		i = len(series) - 1
	}
	return series[i]
}
