package uv_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundose/sundose/internal/dose"
	"github.com/sundose/sundose/internal/envcache"
	"github.com/sundose/sundose/internal/uv"
)

var pdt = time.FixedZone("PDT", -7*3600)

var sanFrancisco = uv.Location{Lat: 37.7749, Lon: -122.4194, Label: "San Francisco"}

// fakeProvider returns a canned forecast or error.
type fakeProvider struct {
	mu       sync.Mutex
	forecast *uv.Forecast
	err      error
	calls    int
}

func (p *fakeProvider) Forecast(_ context.Context, _ uv.Location) (*uv.Forecast, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.forecast, nil
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// buildForecast creates a two day forecast where hour 14 of day 0 is 6.0 and
// hour 15 is 7.0.
func buildForecast(fetchedAt time.Time) *uv.Forecast {
	f := &uv.Forecast{
		Lat:       37.77,
		Lon:       -122.42,
		Location:  pdt,
		FetchedAt: fetchedAt,
	}

	for d := 0; d < 2; d++ {
		day := time.Date(2026, 6, 21+d, 0, 0, 0, 0, pdt)
		f.Daily = append(f.Daily, uv.DailyForecast{
			Date:          day.Format("2006-01-02"),
			UVMax:         9,
			UVClearSkyMax: 9.5,
			Sunrise:       day.Add(5*time.Hour + 48*time.Minute),
			Sunset:        day.Add(20*time.Hour + 35*time.Minute),
		})
		for h := 0; h < 24; h++ {
			v := 0.0
			switch {
			case h == 14:
				v = 6
			case h == 15:
				v = 7
			case h > 8 && h < 18:
				v = 4
			}
			f.Hourly = append(f.Hourly, uv.HourlySample{
				Time:       day.Add(time.Duration(h) * time.Hour),
				UV:         v,
				CloudCover: float64(h),
			})
		}
	}
	return f
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newService(provider uv.Provider, clk *clock) (*uv.Service, *envcache.Store) {
	cache := envcache.NewStore(envcache.StoreConfig{
		Repository: envcache.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
		Now:        clk.Now,
	})
	svc := uv.NewService(uv.ServiceConfig{
		Provider: provider,
		Cache:    cache,
		Logger:   zerolog.Nop(),
		Now:      clk.Now,
	})
	return svc, cache
}

func TestService_InitialState(t *testing.T) {
	svc, _ := newService(&fakeProvider{}, &clock{now: time.Now()})

	res := svc.Current()
	assert.Equal(t, uv.ModeNoData, res.Mode)
	assert.True(t, res.HasNoData)
	assert.Equal(t, uv.PlaceholderMoon, res.Moon)
	assert.True(t, svc.ShouldRefresh(time.Now()))

	_, err := svc.Retry(context.Background())
	assert.ErrorIs(t, err, uv.ErrNoLocation)
}

func TestService_Fetch_InterpolatesCurrentUV(t *testing.T) {
	now := time.Date(2026, 6, 21, 14, 30, 0, 0, pdt)
	clk := &clock{now: now}
	svc, _ := newService(&fakeProvider{forecast: buildForecast(now)}, clk)

	res, err := svc.Fetch(context.Background(), sanFrancisco)
	require.NoError(t, err)

	assert.Equal(t, uv.ModeLive, res.Mode)
	assert.False(t, res.Offline)
	assert.False(t, res.HasNoData)

	snap := res.Snapshot
	assert.InDelta(t, 6.5, snap.CurrentUV, 1e-9)
	assert.Equal(t, 1.0, snap.AltitudeMultiplier)
	assert.Equal(t, 9.0, snap.TodayMaxUV)
	assert.Equal(t, 9.0, snap.TomorrowMaxUV)
	assert.Equal(t, 9.5, snap.TodayClearSkyMaxUV)
	assert.Equal(t, 14.0, snap.CloudCover)
	assert.Len(t, snap.HourlyUV, 48)
	assert.Equal(t, uv.SourceForecast, snap.Source)
	assert.False(t, snap.VitaminDWinter)
	assert.Equal(t, 5, snap.TodaySunrise.Hour())
	assert.Equal(t, 22, snap.TomorrowSunrise.Day())
	assert.InDelta(t, 425/6.5, snap.BurnTimes[dose.SkinType3], 1e-9)

	// End-to-end: the dose rate at the interpolated UV.
	profile := dose.DefaultProfile()
	expected := 21000 * (6.5 * 3 / (4 + 6.5)) * dose.ClothingLight.Factor() * 1.0 *
		dose.SkinType3.Factor() * 1.0 * dose.TimeOfDayFactor(14.5) * 1.0
	assert.InDelta(t, expected, dose.HourlyRate(snap.CurrentUV, profile, snap.Timestamp), 1e-6)

	assert.NotEqual(t, uv.PlaceholderMoon.ComputedAt, res.Moon.ComputedAt)
	assert.False(t, svc.ShouldRefresh(now.Add(4*time.Minute)))
	assert.True(t, svc.ShouldRefresh(now.Add(5*time.Minute)))
}

func TestService_Fetch_InterpolationIgnoresSeconds(t *testing.T) {
	now := time.Date(2026, 6, 21, 14, 30, 45, 0, pdt)
	svc, _ := newService(&fakeProvider{forecast: buildForecast(now)}, &clock{now: now})

	res, err := svc.Fetch(context.Background(), sanFrancisco)
	require.NoError(t, err)
	assert.Equal(t, 6.5, res.Snapshot.CurrentUV)
}

func TestService_AttemptDueCountsFailures(t *testing.T) {
	now := time.Date(2026, 6, 21, 14, 30, 0, 0, pdt)
	svc, _ := newService(&fakeProvider{err: errors.New("timeout")}, &clock{now: now})

	assert.True(t, svc.AttemptDue(now))

	res, err := svc.Fetch(context.Background(), sanFrancisco)
	require.NoError(t, err)
	require.Equal(t, uv.ModeNoData, res.Mode)

	assert.True(t, svc.ShouldRefresh(now.Add(time.Minute)), "no success yet")
	assert.False(t, svc.AttemptDue(now.Add(4*time.Minute)))
	assert.True(t, svc.AttemptDue(now.Add(5*time.Minute)))
}

func TestService_Fetch_AppliesAltitudeMultiplier(t *testing.T) {
	now := time.Date(2026, 6, 21, 14, 30, 0, 0, pdt)
	svc, _ := newService(&fakeProvider{forecast: buildForecast(now)}, &clock{now: now})

	alt := 2000.0
	loc := sanFrancisco
	loc.Altitude = &alt

	res, err := svc.Fetch(context.Background(), loc)
	require.NoError(t, err)

	snap := res.Snapshot
	assert.InDelta(t, 1.2, snap.AltitudeMultiplier, 1e-12)
	assert.InDelta(t, 6.5*1.2, snap.CurrentUV, 1e-9)
	assert.InDelta(t, 9*1.2, snap.TodayMaxUV, 1e-9)
	assert.InDelta(t, 9*1.2, snap.TomorrowMaxUV, 1e-9)
	assert.InDelta(t, 425/(6.5*1.2), snap.BurnTimes[dose.SkinType3], 1e-9)
}

func TestService_Fetch_InvalidCoordinates(t *testing.T) {
	provider := &fakeProvider{}
	svc, _ := newService(provider, &clock{now: time.Now()})

	_, err := svc.Fetch(context.Background(), uv.Location{Lat: 91, Lon: 0})
	assert.ErrorIs(t, err, uv.ErrInvalidCoordinates)
	assert.Equal(t, 0, provider.calls)
}

func TestService_Fetch_OfflineServesCache(t *testing.T) {
	now := time.Date(2026, 6, 21, 14, 30, 0, 0, pdt)
	clk := &clock{now: now}
	provider := &fakeProvider{forecast: buildForecast(now)}
	svc, _ := newService(provider, clk)
	ctx := context.Background()

	alt := 1000.0
	loc := sanFrancisco
	loc.Altitude = &alt

	_, err := svc.Fetch(ctx, loc)
	require.NoError(t, err)

	provider.fail(errors.New("dial tcp: network is unreachable"))
	clk.Set(now.Add(50 * time.Minute)) // 15:20

	res, err := svc.Fetch(ctx, uv.Location{Lat: 37.775, Lon: -122.419, Altitude: &alt})
	require.NoError(t, err)

	assert.Equal(t, uv.ModeOffline, res.Mode)
	assert.True(t, res.Offline)
	assert.False(t, res.HasNoData)

	snap := res.Snapshot
	assert.Equal(t, uv.SourceCache, snap.Source)
	// Cached hour 15 value, not interpolated, times the multiplier.
	assert.InDelta(t, 7*1.1, snap.CurrentUV, 1e-9)
	assert.InDelta(t, 9*1.1, snap.TodayMaxUV, 1e-9)
	assert.InDelta(t, 9*1.1, snap.TomorrowMaxUV, 1e-9)
	assert.Equal(t, 15.0, snap.CloudCover)
	assert.Len(t, snap.HourlyUV, 48)
	assert.True(t, snap.TodaySunset.Equal(time.Date(2026, 6, 21, 20, 35, 0, 0, pdt)))
}

func TestService_Fetch_OfflineFromPreSeededCache(t *testing.T) {
	now := time.Date(2026, 6, 21, 9, 10, 0, 0, pdt)
	clk := &clock{now: now}
	svc, cache := newService(&fakeProvider{err: errors.New("timeout")}, clk)

	hourly := make([]float64, 24)
	hourly[9] = 3.3
	cache.Put(context.Background(), envcache.DayRecord{
		Lat:      37.77,
		Lon:      -122.42,
		Date:     "2026-06-21",
		HourlyUV: hourly,
		MaxUV:    8,
		Sunrise:  time.Date(2026, 6, 21, 5, 48, 0, 0, pdt),
		Sunset:   time.Date(2026, 6, 21, 20, 35, 0, 0, pdt),
	})

	res, err := svc.Fetch(context.Background(), sanFrancisco)
	require.NoError(t, err)

	assert.True(t, res.Offline)
	assert.False(t, res.HasNoData)
	assert.InDelta(t, 3.3, res.Snapshot.CurrentUV, 1e-9)
	assert.True(t, res.Snapshot.TomorrowSunrise.IsZero())
}

func TestService_Fetch_NoDataKeepsPriorSnapshot(t *testing.T) {
	now := time.Date(2026, 6, 21, 14, 30, 0, 0, pdt)
	clk := &clock{now: now}
	provider := &fakeProvider{forecast: buildForecast(now)}
	svc, _ := newService(provider, clk)
	ctx := context.Background()

	live, err := svc.Fetch(ctx, sanFrancisco)
	require.NoError(t, err)

	provider.fail(errors.New("no route to host"))
	far := uv.Location{Lat: 48.8566, Lon: 2.3522, Label: "Paris"}

	res, err := svc.Fetch(ctx, far)
	require.NoError(t, err)

	assert.Equal(t, uv.ModeNoData, res.Mode)
	assert.True(t, res.HasNoData)
	assert.True(t, res.Offline)
	assert.Equal(t, live.Snapshot.CurrentUV, res.Snapshot.CurrentUV, "current UV is not forced to zero")
	assert.Equal(t, "San Francisco", res.Snapshot.Location.Label)
	require.NotNil(t, res.SunEstimate)
	assert.True(t, res.SunEstimate.Estimated)

	// The failed location is still the retry target.
	loc, ok := svc.RetryLocation()
	require.True(t, ok)
	assert.Equal(t, "Paris", loc.Label)
}

func TestService_MarkOfflineOnline(t *testing.T) {
	now := time.Date(2026, 6, 21, 14, 30, 0, 0, pdt)
	svc, _ := newService(&fakeProvider{forecast: buildForecast(now)}, &clock{now: now})

	// No effect in no-data mode.
	svc.MarkOffline()
	assert.Equal(t, uv.ModeNoData, svc.Current().Mode)
	assert.False(t, svc.Current().Offline)

	_, err := svc.Fetch(context.Background(), sanFrancisco)
	require.NoError(t, err)

	svc.MarkOffline()
	res := svc.Current()
	assert.Equal(t, uv.ModeOffline, res.Mode)
	assert.True(t, res.Offline)
	assert.InDelta(t, 6.5, res.Snapshot.CurrentUV, 1e-9, "displayed data is kept")

	svc.MarkOnline()
	assert.False(t, svc.Current().Offline)
}

func TestService_Retry(t *testing.T) {
	now := time.Date(2026, 6, 21, 14, 30, 0, 0, pdt)
	provider := &fakeProvider{forecast: buildForecast(now)}
	svc, _ := newService(provider, &clock{now: now})

	svc.SetRetryLocation(sanFrancisco)
	res, err := svc.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uv.ModeLive, res.Mode)
	assert.Equal(t, 1, provider.calls)
}

func TestService_MoonPhaseRefreshesAtMostEverySixHours(t *testing.T) {
	now := time.Date(2026, 6, 21, 8, 0, 0, 0, pdt)
	clk := &clock{now: now}
	svc, _ := newService(&fakeProvider{forecast: buildForecast(now)}, clk)
	ctx := context.Background()

	first, err := svc.Fetch(ctx, sanFrancisco)
	require.NoError(t, err)

	clk.Set(now.Add(2 * time.Hour))
	second, err := svc.Fetch(ctx, sanFrancisco)
	require.NoError(t, err)
	assert.Equal(t, first.Moon.ComputedAt, second.Moon.ComputedAt)

	clk.Set(now.Add(6 * time.Hour))
	third, err := svc.Fetch(ctx, sanFrancisco)
	require.NoError(t, err)
	assert.True(t, third.Moon.ComputedAt.After(first.Moon.ComputedAt))
}
