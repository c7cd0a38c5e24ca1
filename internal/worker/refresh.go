package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sundose/sundose/internal/uv"
)

// Warmer fetches a forecast and writes it to the cache.
type Warmer interface {
	Warm(ctx context.Context, loc uv.Location) (int, error)
}

var _ Warmer = (*uv.Service)(nil)

// RefreshJob pre-warms the cache for every configured point.
type RefreshJob struct {
	config RefreshConfig
	logger zerolog.Logger
	warmer Warmer

	mu    sync.RWMutex
	stats RefreshMetrics
}

// RefreshMetrics is a cumulative view over every run of a job.
type RefreshMetrics struct {
	TotalRefreshes    int64
	SuccessfulRefresh int64
	FailedRefreshes   int64
	DaysCached        int64

	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config RefreshConfig
	Logger zerolog.Logger

	// Warmer performs the fetch. Required.
	Warmer Warmer
}

// NewRefreshJob applies defaults to cfg and returns a job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	config := cfg.Config
	if len(config.Targets) == 0 {
		config.Targets = DefaultRefreshTargets()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &RefreshJob{
		config: config,
		logger: cfg.Logger.With().Str("component", "refresh").Logger(),
		warmer: cfg.Warmer,
	}
}

// RefreshResult summarizes one run.
type RefreshResult struct {
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	TotalPoints int
	Successful  int
	Failed      int
	DaysCached  int
	Errors      []RefreshError
}

// RefreshError records a failed point.
type RefreshError struct {
	Point Point
	Error string
}

// Run warms every configured point. Points not started before ctx ends
// count as neither successful nor failed.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	return j.run(ctx, j.config.AllPoints())
}

// RunPoints warms an explicit list of points with the job's settings.
func (j *RefreshJob) RunPoints(ctx context.Context, points []Point) *RefreshResult {
	return j.run(ctx, points)
}

type pointOutcome struct {
	attempted bool
	days      int
	err       error
}

func (j *RefreshJob) run(ctx context.Context, points []Point) *RefreshResult {
	result := &RefreshResult{StartTime: time.Now(), TotalPoints: len(points)}

	j.logger.Info().
		Int("total_points", result.TotalPoints).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cache refresh job")

	// Each goroutine owns one slot, so outcomes need no locking and errors
	// come out in point order.
	outcomes := make([]pointOutcome, len(points))

	var g errgroup.Group
	g.SetLimit(j.config.Concurrency)
	for i, p := range points {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			days, err := j.warmPoint(ctx, p)
			outcomes[i] = pointOutcome{attempted: true, days: days, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		switch {
		case !o.attempted:
		case o.err != nil:
			result.Failed++
			result.Errors = append(result.Errors, RefreshError{Point: points[i], Error: o.err.Error()})
		default:
			result.Successful++
			result.DaysCached += o.days
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	j.record(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("days_cached", result.DaysCached).
		Msg("cache refresh job completed")

	return result
}

func (j *RefreshJob) warmPoint(ctx context.Context, point Point) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	days, err := j.warmer.Warm(ctx, point.Location())
	if err != nil {
		j.logger.Warn().Err(err).
			Float64("lat", point.Lat).
			Float64("lon", point.Lon).
			Msg("failed to warm cache")
	}
	return days, err
}

func (j *RefreshJob) record(result *RefreshResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stats.TotalRefreshes++
	j.stats.SuccessfulRefresh += int64(result.Successful)
	j.stats.FailedRefreshes += int64(result.Failed)
	j.stats.DaysCached += int64(result.DaysCached)
	j.stats.LastRefreshAt = result.EndTime
	j.stats.LastRefreshDuration = result.Duration
	j.stats.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the cumulative statistics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stats
}

// MetricsSnapshot returns the statistics keyed for the /health endpoint.
func (j *RefreshJob) MetricsSnapshot() map[string]any {
	m := j.GetMetrics()
	return map[string]any{
		"total_refreshes":       m.TotalRefreshes,
		"successful_refreshes":  m.SuccessfulRefresh,
		"failed_refreshes":      m.FailedRefreshes,
		"days_cached":           m.DaysCached,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
	}
}
