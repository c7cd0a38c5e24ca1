package dose

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Accumulator errors.
var (
	ErrNotTracking     = errors.New("no tracking session in progress")
	ErrAlreadyTracking = errors.New("tracking session already in progress")
)

// State is the accumulator lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StateTracking State = "TRACKING"
)

// DefaultBurnThreshold is the MED fraction that triggers the burn warning.
const DefaultBurnThreshold = 0.80

// Session is the persisted state of one tracking session.
type Session struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	Dose        float64   `json:"dose"`
	MEDFraction float64   `json:"medFraction"`
	LastUV      float64   `json:"lastUv"`
	LastUpdate  time.Time `json:"lastUpdate"`
	Active      bool      `json:"active"`
}

// Open reports whether the session has a start time.
func (s Session) Open() bool {
	return !s.StartedAt.IsZero()
}

// SessionStore persists the active session snapshot across suspension.
type SessionStore interface {
	SaveSession(ctx context.Context, s Session) error
	LoadSession(ctx context.Context) (*Session, error)
	ClearSession(ctx context.Context) error
}

// View is a read-only copy of the accumulator state.
type View struct {
	State       State   `json:"state"`
	Session     Session `json:"session"`
	CurrentRate float64 `json:"currentRate"`
	LastUV      float64 `json:"lastUv"`
	BurnWarned  bool    `json:"burnWarned"`
	Running     bool    `json:"running"`
	Profile     Profile `json:"profile"`
}

// AccumulatorConfig holds configuration for the accumulator.
type AccumulatorConfig struct {
	// Store persists session snapshots. Required.
	Store SessionStore

	// Logger for accumulator operations.
	Logger zerolog.Logger

	// Profile is the initial physiological profile (default: DefaultProfile).
	Profile *Profile

	// TickInterval is the accumulation cadence (default: 1 second).
	TickInterval time.Duration

	// PersistInterval bounds how often snapshots are written while ticking
	// (default: 10 seconds).
	PersistInterval time.Duration

	// BurnThreshold is the MED fraction that fires OnBurnWarning (default: 0.80).
	BurnThreshold float64

	// OnBurnWarning is called once per session when the MED fraction crosses
	// BurnThreshold. It runs outside the accumulator lock.
	OnBurnWarning func(ctx context.Context, s Session)

	// OnTick is called after every tick that advanced the session. It runs
	// outside the accumulator lock.
	OnTick func(ctx context.Context, s Session)

	// Location is the zone whose wall clock drives the time-of-day factor
	// and the day boundary until SetZone replaces it. Nil uses the zone of
	// the times Now returns.
	Location *time.Location

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Accumulator integrates the synthesis rate over a tracking session.
type Accumulator struct {
	store           SessionStore
	logger          zerolog.Logger
	tickInterval    time.Duration
	persistInterval time.Duration
	burnThreshold   float64
	onBurnWarning   func(ctx context.Context, s Session)
	onTick          func(ctx context.Context, s Session)
	now             func() time.Time

	mu          sync.Mutex
	state       State
	session     Session
	profile     Profile
	zone        *time.Location
	lastUV      float64
	currentRate float64
	lastPersist time.Time
	burnWarned  bool
	stopLoop    context.CancelFunc
	loopDone    chan struct{}
}

// NewAccumulator creates an idle accumulator.
func NewAccumulator(cfg AccumulatorConfig) *Accumulator {
	tickInterval := cfg.TickInterval
	if tickInterval == 0 {
		tickInterval = time.Second
	}

	persistInterval := cfg.PersistInterval
	if persistInterval == 0 {
		persistInterval = 10 * time.Second
	}

	burnThreshold := cfg.BurnThreshold
	if burnThreshold == 0 {
		burnThreshold = DefaultBurnThreshold
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	profile := DefaultProfile()
	if cfg.Profile != nil {
		profile = *cfg.Profile
	}

	return &Accumulator{
		store:           cfg.Store,
		logger:          cfg.Logger.With().Str("component", "dose.accumulator").Logger(),
		tickInterval:    tickInterval,
		persistInterval: persistInterval,
		burnThreshold:   burnThreshold,
		onBurnWarning:   cfg.OnBurnWarning,
		onTick:          cfg.OnTick,
		now:             now,
		state:           StateIdle,
		profile:         profile,
		zone:            cfg.Location,
	}
}

// Begin opens a tracking session and starts the tick loop.
// A session restored earlier in the day is continued rather than reset, and
// the time since its last update is not counted.
func (a *Accumulator) Begin(ctx context.Context, currentUV float64) error {
	a.mu.Lock()
	if a.state == StateTracking && a.stopLoop != nil {
		a.mu.Unlock()
		return ErrAlreadyTracking
	}

	now := a.localNow()
	if !a.session.Open() {
		a.session = Session{
			ID:        uuid.New().String(),
			StartedAt: now,
		}
		a.burnWarned = false
	}
	a.state = StateTracking
	a.session.Active = true
	a.session.LastUV = currentUV
	a.session.LastUpdate = now
	a.lastUV = currentUV
	a.currentRate = HourlyRate(currentUV, a.profile, now)
	a.lastPersist = now
	snapshot := a.session
	a.startLoopLocked(ctx)
	a.mu.Unlock()

	a.logger.Info().
		Str("session_id", snapshot.ID).
		Time("started_at", snapshot.StartedAt).
		Float64("uv", currentUV).
		Msg("tracking session started")

	a.persist(ctx, snapshot)
	return nil
}

// Tick advances the session by the wall-clock time elapsed since the previous
// update. It is a no-op while idle.
func (a *Accumulator) Tick(ctx context.Context) {
	a.mu.Lock()
	if a.state != StateTracking {
		a.mu.Unlock()
		return
	}

	now := a.localNow()
	crossed := a.advanceLocked(now)

	var snapshot *Session
	if now.Sub(a.lastPersist) >= a.persistInterval {
		a.lastPersist = now
		s := a.session
		snapshot = &s
	}
	current := a.session
	a.mu.Unlock()

	if snapshot != nil {
		a.persist(ctx, *snapshot)
	}
	a.warnBurn(ctx, current, crossed)
	if a.onTick != nil {
		a.onTick(ctx, current)
	}
}

// advanceLocked integrates the rate from the last update to now and reports
// whether the burn threshold was crossed for the first time.
func (a *Accumulator) advanceLocked(now time.Time) bool {
	elapsed := now.Sub(a.session.LastUpdate).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	rate := HourlyRate(a.lastUV, a.profile, now)
	a.currentRate = rate
	a.session.Dose += rate * (elapsed / 3600)

	before := a.session.MEDFraction
	burnMinutes := a.profile.SkinType.BurnTimeMinutes(a.lastUV)
	a.session.MEDFraction += elapsed / (burnMinutes * 60)
	a.session.LastUV = a.lastUV
	a.session.LastUpdate = now

	crossed := !a.burnWarned && before < a.burnThreshold && a.session.MEDFraction >= a.burnThreshold
	if crossed {
		a.burnWarned = true
	}
	return crossed
}

func (a *Accumulator) warnBurn(ctx context.Context, s Session, crossed bool) {
	if !crossed {
		return
	}
	a.logger.Warn().
		Str("session_id", s.ID).
		Float64("med_fraction", s.MEDFraction).
		Msg("burn threshold reached")
	if a.onBurnWarning != nil {
		a.onBurnWarning(ctx, s)
	}
}

// End stops tracking, clears the persisted snapshot and returns the final
// session so the caller can commit its dose.
func (a *Accumulator) End(ctx context.Context) (Session, error) {
	a.mu.Lock()
	if a.state != StateTracking {
		a.mu.Unlock()
		return Session{}, ErrNotTracking
	}
	done := a.stopLoopLocked()
	final := a.session
	final.Active = false
	a.state = StateIdle
	a.session = Session{}
	a.burnWarned = false
	a.currentRate = HourlyRate(a.lastUV, a.profile, a.localNow())
	a.mu.Unlock()

	waitLoop(done)

	if err := a.store.ClearSession(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("failed to clear persisted session")
	}

	a.logger.Info().
		Str("session_id", final.ID).
		Float64("dose_iu", final.Dose).
		Float64("med_fraction", final.MEDFraction).
		Dur("duration", final.LastUpdate.Sub(final.StartedAt)).
		Msg("tracking session ended")

	return final, nil
}

// UpdateUV records the latest UV sample. While tracking it only feeds the next
// tick; while idle it also refreshes the displayed potential rate.
func (a *Accumulator) UpdateUV(uv float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastUV = uv
	if a.state == StateIdle {
		a.currentRate = HourlyRate(uv, a.profile, a.localNow())
	}
}

// SetProfile replaces the physiological profile used by subsequent ticks.
func (a *Accumulator) SetProfile(p Profile) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.profile = p
	if a.state == StateIdle {
		a.currentRate = HourlyRate(a.lastUV, a.profile, a.localNow())
	}
}

// SetZone sets the zone whose wall clock drives the time-of-day factor and
// the day boundary. Nil falls back to the zone of the clock.
func (a *Accumulator) SetZone(loc *time.Location) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.zone = loc
	if a.state == StateIdle {
		a.currentRate = HourlyRate(a.lastUV, a.profile, a.localNow())
	}
}

// Zone returns the zone in use, or nil when none has been set.
func (a *Accumulator) Zone() *time.Location {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.zone
}

// localNow returns the clock's time in the accumulator zone. Callers hold mu.
func (a *Accumulator) localNow() time.Time {
	now := a.now()
	if a.zone != nil {
		return now.In(a.zone)
	}
	return now
}

// Pause credits the time since the last tick, stops the tick loop and
// persists the session. Used when the host is backgrounded; the paused
// interval itself is never credited.
func (a *Accumulator) Pause(ctx context.Context) {
	a.mu.Lock()
	if a.state != StateTracking || a.stopLoop == nil {
		a.mu.Unlock()
		return
	}
	done := a.stopLoopLocked()
	a.mu.Unlock()

	waitLoop(done)

	a.mu.Lock()
	if a.state != StateTracking {
		a.mu.Unlock()
		return
	}
	now := a.localNow()
	crossed := a.advanceLocked(now)
	snapshot := a.session
	a.lastPersist = now
	a.mu.Unlock()

	a.persist(ctx, snapshot)
	a.warnBurn(ctx, snapshot, crossed)
}

// Resume restarts the tick loop with an immediate tick. It is also the signal
// that the host finished initialising after Restore.
func (a *Accumulator) Resume(ctx context.Context) {
	a.mu.Lock()
	if a.state != StateTracking || a.stopLoop != nil {
		a.mu.Unlock()
		return
	}
	a.startLoopLocked(ctx)
	a.mu.Unlock()

	a.Tick(ctx)
}

// Restore loads a persisted session. Snapshots from an earlier calendar day
// are discarded. A restored session is Tracking but does not tick until
// Resume, and the time it spent persisted is not credited. Without a zone the
// session's own start offset decides the day and is adopted.
func (a *Accumulator) Restore(ctx context.Context) (bool, error) {
	saved, err := a.store.LoadSession(ctx)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if saved == nil || !saved.Open() {
		return false, nil
	}

	zone := a.zone
	if zone == nil {
		zone = saved.StartedAt.Location()
	}
	now := a.now().In(zone)

	if !sameDay(saved.StartedAt, now) {
		a.state = StateIdle
		a.session = Session{}
		if err := a.store.ClearSession(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("failed to clear stale session")
		}
		a.logger.Info().
			Time("started_at", saved.StartedAt).
			Msg("discarded session from a previous day")
		return false, nil
	}

	a.zone = zone
	a.session = *saved
	a.session.Active = true
	a.session.LastUpdate = now
	a.state = StateTracking
	a.lastUV = saved.LastUV
	a.burnWarned = saved.MEDFraction >= a.burnThreshold
	a.lastPersist = now

	a.logger.Info().
		Str("session_id", saved.ID).
		Float64("dose_iu", saved.Dose).
		Msg("restored tracking session")
	return true, nil
}

// View returns a copy of the current state.
func (a *Accumulator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()

	return View{
		State:       a.state,
		Session:     a.session,
		CurrentRate: a.currentRate,
		LastUV:      a.lastUV,
		BurnWarned:  a.burnWarned,
		Running:     a.stopLoop != nil,
		Profile:     a.profile,
	}
}

// Profile returns the profile in use.
func (a *Accumulator) Profile() Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile
}

func (a *Accumulator) startLoopLocked(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	a.stopLoop = cancel
	a.loopDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(a.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				a.Tick(loopCtx)
			}
		}
	}()
}

func (a *Accumulator) stopLoopLocked() chan struct{} {
	done := a.loopDone
	if a.stopLoop != nil {
		a.stopLoop()
		a.stopLoop = nil
	}
	a.loopDone = nil
	return done
}

// waitLoop blocks until a stopped loop goroutine exits. Callers must not hold
// mu, since an in-flight tick needs it to finish.
func waitLoop(done chan struct{}) {
	if done != nil {
		<-done
	}
}

func (a *Accumulator) persist(ctx context.Context, s Session) {
	if err := a.store.SaveSession(ctx, s); err != nil {
		a.logger.Warn().Err(err).Str("session_id", s.ID).Msg("failed to persist session")
	}
}

// sameDay reports whether a falls on the same calendar day as now, in now's zone.
func sameDay(a, now time.Time) bool {
	a = a.In(now.Location())
	b := now
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
