// Package engine is the host orchestration layer. A single goroutine owns
// the published state: location updates, lifecycle changes, fetch
// completions, connectivity edges and the ambient ticker are all marshaled
// onto it. Forecast fetches run on their own goroutines and post their
// results back.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sundose/sundose/internal/connectivity"
	"github.com/sundose/sundose/internal/dose"
	"github.com/sundose/sundose/internal/health"
	"github.com/sundose/sundose/internal/notify"
	"github.com/sundose/sundose/internal/state"
	"github.com/sundose/sundose/internal/telemetry"
	"github.com/sundose/sundose/internal/uv"
)

// Engine errors.
var (
	// ErrPermissionDenied is returned while location access is denied. It is
	// cleared only by a new location fix.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrStopped is returned when the event loop is not running.
	ErrStopped = errors.New("engine stopped")

	// ErrInvalidExposure is returned for a retroactive exposure without a
	// positive duration.
	ErrInvalidExposure = errors.New("exposure minutes must be positive")
)

// Defaults.
const (
	DefaultAmbientInterval = 60 * time.Second
	DefaultFetchTimeout    = 30 * time.Second
)

// Config holds the engine's collaborators.
type Config struct {
	// UV is the forecast pipeline. Required.
	UV *uv.Service

	// State persists the profile, location, session and markers. Required.
	State *state.Store

	// Health is the health-store capability (optional).
	Health health.Store

	// Notifier schedules sun and burn alerts (optional).
	Notifier *notify.Trigger

	// Metrics records committed doses (optional).
	Metrics *telemetry.PipelineMetrics

	Logger zerolog.Logger

	// TickInterval and PersistInterval configure the accumulator.
	TickInterval    time.Duration
	PersistInterval time.Duration

	// AmbientInterval is the cadence of ambient updates (default: 60s).
	AmbientInterval time.Duration

	// FetchTimeout bounds one fetch (default: 30s).
	FetchTimeout time.Duration

	// OnWidget receives the widget projection after every update (optional).
	OnWidget func(Widget)

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Engine coordinates the UV pipeline, the dose accumulator, connectivity
// and notifications.
type Engine struct {
	uv       *uv.Service
	state    *state.Store
	health   health.Store
	notifier *notify.Trigger
	metrics  *telemetry.PipelineMetrics
	acc      *dose.Accumulator
	gate     *connectivity.Gate
	logger   zerolog.Logger
	onWidget func(Widget)
	now      func() time.Time

	ambientInterval time.Duration
	fetchTimeout    time.Duration

	cmds    chan func()
	started chan struct{}
	done    chan struct{}
	runCtx  context.Context

	// Owned by the loop goroutine.
	location         *uv.Location
	permissionDenied bool
	foreground       bool
	profileSaved     bool
	published        Widget
}

// New creates an engine. Call Run to start the event loop.
func New(cfg Config) *Engine {
	if cfg.AmbientInterval <= 0 {
		cfg.AmbientInterval = DefaultAmbientInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &Engine{
		uv:              cfg.UV,
		state:           cfg.State,
		health:          cfg.Health,
		notifier:        cfg.Notifier,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger.With().Str("component", "engine").Logger(),
		onWidget:        cfg.OnWidget,
		now:             cfg.Now,
		ambientInterval: cfg.AmbientInterval,
		fetchTimeout:    cfg.FetchTimeout,
		cmds:            make(chan func()),
		started:         make(chan struct{}),
		done:            make(chan struct{}),
		foreground:      true,
	}

	e.acc = dose.NewAccumulator(dose.AccumulatorConfig{
		Store:           cfg.State,
		Logger:          cfg.Logger,
		TickInterval:    cfg.TickInterval,
		PersistInterval: cfg.PersistInterval,
		OnBurnWarning:   e.burnWarning,
		OnTick:          e.tickPublished,
		Now:             cfg.Now,
	})

	e.gate = connectivity.NewGate(connectivity.GateConfig{
		OnOnline:  func() { e.post(e.handleOnline) },
		OnOffline: func() { e.post(e.handleOffline) },
	})

	return e
}

// Gate returns the connectivity gate feeding the engine.
func (e *Engine) Gate() *connectivity.Gate {
	return e.gate
}

// Accumulator returns the dose accumulator.
func (e *Engine) Accumulator() *dose.Accumulator {
	return e.acc
}

// Run restores persisted state and processes events until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	defer close(e.done)

	e.bootstrap(ctx)
	close(e.started)

	ticker := time.NewTicker(e.ambientInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.acc.Pause(context.WithoutCancel(ctx))
			e.logger.Info().Msg("engine stopped")
			return nil
		case cmd := <-e.cmds:
			cmd()
		case <-ticker.C:
			e.ambient(ctx)
		}
	}
}

// Ready is closed once the engine has restored its state.
func (e *Engine) Ready() <-chan struct{} {
	return e.started
}

// do runs fn on the loop goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	cmd := func() {
		defer close(finished)
		fn()
	}

	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// post queues fn on the loop goroutine without waiting. It gives up if the
// loop has stopped.
func (e *Engine) post(fn func()) {
	go func() {
		select {
		case e.cmds <- fn:
		case <-e.done:
		}
	}()
}

func (e *Engine) bootstrap(ctx context.Context) {
	profile := dose.DefaultProfile()
	if saved, ok, err := e.state.Profile(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("failed to load profile, using defaults")
	} else if ok {
		profile = saved
		e.profileSaved = true
	}
	e.acc.SetProfile(profile)
	e.syncHealth(ctx)

	if at, ok, err := e.state.LastFetch(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("failed to load last fetch time")
	} else if ok {
		e.uv.SetLastSuccessAt(at)
	}

	if loc, ok, err := e.state.LastLocation(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("failed to load last location")
	} else if ok {
		e.location = &loc
		e.uv.SetRetryLocation(loc)
	}

	restored, err := e.acc.Restore(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to restore session")
	}
	if restored {
		e.acc.Resume(ctx)
	}

	if e.location != nil {
		e.startFetch(*e.location, nil)
	}
	e.publish(ctx)

	e.logger.Info().
		Bool("has_location", e.location != nil).
		Bool("session_restored", restored).
		Msg("engine started")
}

// ambient runs on the ambient cadence.
func (e *Engine) ambient(ctx context.Context) {
	if e.ambientFetchDue(e.now()) {
		e.startFetch(*e.location, nil)
	}
	// Refreshes the idle potential rate as the time-of-day factor drifts.
	e.acc.UpdateUV(e.acc.View().LastUV)
	e.publish(ctx)
}

// ambientFetchDue gates the ambient refetch. No-data mode waits for a new
// fix, an explicit refresh or a connectivity edge, and failed attempts count
// towards the refresh interval.
func (e *Engine) ambientFetchDue(now time.Time) bool {
	if !e.foreground || e.location == nil || e.permissionDenied {
		return false
	}
	if e.uv.Current().Mode == uv.ModeNoData {
		return false
	}
	return e.uv.ShouldRefresh(now) && e.uv.AttemptDue(now)
}

// startFetch runs a fetch on its own goroutine. The result is applied on
// the loop and then sent to reply, if set. Backgrounding does not cancel it.
func (e *Engine) startFetch(loc uv.Location, reply chan<- uv.Result) {
	base := e.runCtx
	if base == nil {
		base = context.Background()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(base), e.fetchTimeout)
		defer cancel()

		res, err := e.uv.Fetch(ctx, loc)
		if err != nil {
			e.logger.Warn().Err(err).Msg("fetch rejected")
		}

		select {
		case e.cmds <- func() {
			e.applyResult(base, res)
			if reply != nil {
				reply <- res
			}
		}:
		case <-e.done:
		}
	}()
}

// applyResult feeds a completed fetch into the accumulator and notifier.
// A no-data result leaves the last-known UV in place. A snapshot also sets
// the location's zone for local time-of-day.
func (e *Engine) applyResult(ctx context.Context, res uv.Result) {
	if !res.Snapshot.Empty() {
		e.acc.SetZone(res.Snapshot.Timestamp.Location())
	}

	switch res.Mode {
	case uv.ModeLive:
		e.acc.UpdateUV(res.Snapshot.CurrentUV)
		if err := e.state.SaveLastFetch(ctx, e.uv.LastSuccessAt()); err != nil {
			e.logger.Warn().Err(err).Msg("failed to persist last fetch time")
		}
		e.scheduleSunEvents(ctx, res.Snapshot.TodaySunrise, res.Snapshot.TodaySunset)
	case uv.ModeOffline:
		if !res.Snapshot.Empty() {
			e.acc.UpdateUV(res.Snapshot.CurrentUV)
			e.scheduleSunEvents(ctx, res.Snapshot.TodaySunrise, res.Snapshot.TodaySunset)
		}
	case uv.ModeNoData:
		if res.SunEstimate != nil {
			e.scheduleSunEvents(ctx, res.SunEstimate.Sunrise, res.SunEstimate.Sunset)
		}
	}

	e.publish(ctx)
}

func (e *Engine) scheduleSunEvents(ctx context.Context, sunrise, sunset time.Time) {
	if e.notifier == nil {
		return
	}
	if _, err := e.notifier.ScheduleSunEvents(ctx, sunrise, sunset); err != nil {
		e.logger.Warn().Err(err).Msg("failed to schedule sun events")
	}
}

// localNow returns the current time in the location's zone, once a snapshot
// has supplied one.
func (e *Engine) localNow() time.Time {
	return e.inZone(e.now())
}

func (e *Engine) inZone(t time.Time) time.Time {
	if zone := e.acc.Zone(); zone != nil {
		return t.In(zone)
	}
	return t
}

// tickPublished runs on the accumulator's tick goroutine and republishes the
// widget from the loop.
func (e *Engine) tickPublished(context.Context, dose.Session) {
	e.post(func() { e.publish(e.runCtx) })
}

// handleOnline and handleOffline check the gate again since posted edges
// may run out of order.
func (e *Engine) handleOnline() {
	if !e.gate.Online() {
		return
	}
	e.uv.MarkOnline()
	if e.permissionDenied {
		e.publish(e.runCtx)
		return
	}
	if loc, ok := e.uv.RetryLocation(); ok {
		e.logger.Info().Msg("connectivity restored, refetching")
		e.startFetch(loc, nil)
	}
	e.publish(e.runCtx)
}

func (e *Engine) handleOffline() {
	if e.gate.Online() {
		return
	}
	e.uv.MarkOffline()
	e.publish(e.runCtx)
}

// burnWarning runs on the accumulator's tick goroutine.
func (e *Engine) burnWarning(ctx context.Context, s dose.Session) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.BurnWarning(ctx, s.MEDFraction); err != nil {
		e.logger.Warn().Err(err).Msg("failed to deliver burn warning")
	}
}

// syncHealth applies attributes from the health store to fields the user
// has not overridden and refreshes the seven-day average.
func (e *Engine) syncHealth(ctx context.Context) {
	if e.health == nil {
		return
	}

	p := e.acc.Profile()

	if st, ok, err := e.health.SkinType(ctx); err != nil {
		e.logger.Debug().Err(err).Msg("health skin type unavailable")
	} else if ok && (p.SkinTypeFromHealth || !e.profileSaved) {
		p.SkinType = st
		p.SkinTypeFromHealth = true
	}

	if age, ok, err := e.health.Age(ctx); err != nil {
		e.logger.Debug().Err(err).Msg("health age unavailable")
	} else if ok && (p.AgeFromHealth || !e.profileSaved || p.Age == nil) {
		p.Age = &age
		p.AgeFromHealth = true
	}

	avg, err := health.SevenDayAverage(ctx, e.health, e.localNow())
	if err != nil {
		e.logger.Debug().Err(err).Msg("health history unavailable")
	} else {
		p.SevenDayAverage = avg
	}

	e.acc.SetProfile(p)
}
