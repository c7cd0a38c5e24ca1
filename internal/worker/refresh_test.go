package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundose/sundose/internal/uv"
	"github.com/sundose/sundose/internal/worker"
)

// fakeWarmer records warmed locations and fails for latitudes in failLat.
type fakeWarmer struct {
	mu      sync.Mutex
	warmed  []uv.Location
	failLat map[float64]bool
}

func (w *fakeWarmer) Warm(_ context.Context, loc uv.Location) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failLat[loc.Lat] {
		return 0, errors.New("upstream unavailable")
	}
	w.warmed = append(w.warmed, loc)
	return 2, nil
}

func (w *fakeWarmer) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.warmed)
}

func TestDefaultRefreshConfig(t *testing.T) {
	cfg := worker.DefaultRefreshConfig()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.GreaterOrEqual(t, cfg.TotalPoints(), 10)

	for _, p := range cfg.AllPoints() {
		assert.NoError(t, p.Location().Validate())
	}
}

func TestRefreshConfig_AllPoints_PriorityOrder(t *testing.T) {
	cfg := worker.RefreshConfig{
		Targets: []worker.RefreshTarget{
			{Name: "Later", Priority: 3, Points: []worker.Point{{Lat: 3, Lon: 3}}},
			{Name: "First", Priority: 1, Points: []worker.Point{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}},
		},
	}

	points := cfg.AllPoints()
	require.Len(t, points, 3)
	assert.Equal(t, 1.0, points[0].Lat)
	assert.Equal(t, 2.0, points[1].Lat)
	assert.Equal(t, 3.0, points[2].Lat)
	assert.Equal(t, "Later", cfg.Targets[0].Name, "AllPoints must not reorder the config")
}

func TestRefreshJob_Run(t *testing.T) {
	warmer := &fakeWarmer{}
	points := make([]worker.Point, 10)
	for i := range points {
		points[i] = worker.Point{Lat: float64(i), Lon: float64(i)}
	}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets:     []worker.RefreshTarget{{Name: "Test", Points: points}},
			Concurrency: 4,
			Timeout:     time.Second,
		},
		Logger: zerolog.Nop(),
		Warmer: warmer,
	})

	result := job.Run(context.Background())

	assert.Equal(t, 10, result.TotalPoints)
	assert.Equal(t, 10, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 20, result.DaysCached)
	assert.Equal(t, 10, warmer.count())

	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.TotalRefreshes)
	assert.Equal(t, int64(10), m.SuccessfulRefresh)
	assert.Equal(t, int64(20), m.DaysCached)
	assert.False(t, m.LastRefreshAt.IsZero())

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(20), snapshot["days_cached"])
}

func TestRefreshJob_ErrorCollection(t *testing.T) {
	warmer := &fakeWarmer{failLat: map[float64]bool{2: true}}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets: []worker.RefreshTarget{{
				Name:   "Test",
				Points: []worker.Point{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}},
			}},
			Concurrency: 1,
		},
		Logger: zerolog.Nop(),
		Warmer: warmer,
	})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2.0, result.Errors[0].Point.Lat)
	assert.Equal(t, "upstream unavailable", result.Errors[0].Error)
}

func TestRefreshJob_Run_ContextCancellation(t *testing.T) {
	warmer := &fakeWarmer{}
	points := make([]worker.Point, 100)
	for i := range points {
		points[i] = worker.Point{Lat: float64(i) * 0.5, Lon: 4}
	}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets:     []worker.RefreshTarget{{Name: "Test", Points: points}},
			Concurrency: 1,
		},
		Logger: zerolog.Nop(),
		Warmer: warmer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)
	assert.Equal(t, 100, result.TotalPoints)
	assert.Equal(t, 0, result.Successful+result.Failed)
	assert.Equal(t, 0, warmer.count())
}

func TestRefreshJob_DefaultsWhenUnset(t *testing.T) {
	warmer := &fakeWarmer{}
	job := worker.NewRefreshJob(worker.RefreshJobConfig{Logger: zerolog.Nop(), Warmer: warmer})

	result := job.Run(context.Background())
	assert.Equal(t, worker.DefaultRefreshConfig().TotalPoints(), result.TotalPoints)
	assert.Equal(t, result.TotalPoints, result.Successful)
}

func TestRefreshJob_WithUVService(t *testing.T) {
	svc := uv.NewService(uv.ServiceConfig{
		Provider: &staticProvider{},
		Cache:    newCache(),
		Logger:   zerolog.Nop(),
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets: []worker.RefreshTarget{{Name: "Test", Points: []worker.Point{{Lat: 51.5, Lon: -0.12}}}},
		},
		Logger: zerolog.Nop(),
		Warmer: svc,
	})

	result := job.Run(context.Background())
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.DaysCached)
}
