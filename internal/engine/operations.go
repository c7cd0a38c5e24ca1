package engine

import (
	"context"
	"math"
	"time"

	"github.com/sundose/sundose/internal/dose"
	"github.com/sundose/sundose/internal/health"
	"github.com/sundose/sundose/internal/uv"
)

// sunEventShiftDegrees is how far a fix must move before pending sun alerts
// are dropped and scheduled again. A quarter degree moves them about a minute.
const sunEventShiftDegrees = 0.25

// UpdateLocation accepts a new location fix, persists it and fetches the
// forecast for it. It waits for the fetch to complete or ctx to end; the
// event loop keeps running meanwhile.
func (e *Engine) UpdateLocation(ctx context.Context, loc uv.Location) (uv.Result, error) {
	if err := loc.Validate(); err != nil {
		return uv.Result{}, err
	}

	reply := make(chan uv.Result, 1)
	err := e.do(ctx, func() {
		if e.location != nil && e.notifier != nil && movedFar(*e.location, loc) {
			e.notifier.CancelSunEvents(ctx)
		}
		e.permissionDenied = false
		e.location = &loc
		e.uv.SetRetryLocation(loc)
		if err := e.state.SaveLastLocation(ctx, loc); err != nil {
			e.logger.Warn().Err(err).Msg("failed to persist last location")
		}
		e.startFetch(loc, reply)
	})
	if err != nil {
		return uv.Result{}, err
	}
	return e.await(ctx, reply)
}

// DenyLocation records that location permission was denied. Fetches are
// not retried until a new fix arrives.
func (e *Engine) DenyLocation(ctx context.Context) error {
	return e.do(ctx, func() {
		e.permissionDenied = true
		e.logger.Warn().Msg("location permission denied")
		e.publish(ctx)
	})
}

// Refresh explicitly retries the last location, ignoring the refresh gate.
func (e *Engine) Refresh(ctx context.Context) (uv.Result, error) {
	reply := make(chan uv.Result, 1)
	var opErr error
	err := e.do(ctx, func() {
		if e.permissionDenied {
			opErr = ErrPermissionDenied
			return
		}
		loc, ok := e.uv.RetryLocation()
		if !ok {
			opErr = uv.ErrNoLocation
			return
		}
		e.startFetch(loc, reply)
	})
	if err != nil {
		return uv.Result{}, err
	}
	if opErr != nil {
		return e.uv.Current(), opErr
	}
	return e.await(ctx, reply)
}

func movedFar(from, to uv.Location) bool {
	return math.Abs(from.Lat-to.Lat) >= sunEventShiftDegrees ||
		math.Abs(from.Lon-to.Lon) >= sunEventShiftDegrees
}

func (e *Engine) await(ctx context.Context, reply <-chan uv.Result) (uv.Result, error) {
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return e.uv.Current(), ctx.Err()
	case <-e.done:
		return e.uv.Current(), ErrStopped
	}
}

// Foreground resumes the accumulator with an immediate tick and refetches
// when the last successful fetch is old enough.
func (e *Engine) Foreground(ctx context.Context) error {
	return e.do(ctx, func() {
		e.foreground = true
		e.acc.Resume(ctx)
		if e.location != nil && !e.permissionDenied && e.uv.ShouldRefresh(e.now()) {
			e.startFetch(*e.location, nil)
		}
		e.publish(ctx)
	})
}

// Background pauses accumulation and persists the session. In-flight
// fetches continue.
func (e *Engine) Background(ctx context.Context) error {
	return e.do(ctx, func() {
		e.foreground = false
		e.acc.Pause(ctx)
		e.publish(ctx)
	})
}

// StartTracking begins a session at the current UV.
func (e *Engine) StartTracking(ctx context.Context) (dose.View, error) {
	var opErr error
	err := e.do(ctx, func() {
		opErr = e.acc.Begin(ctx, e.acc.View().LastUV)
		e.publish(ctx)
	})
	if err != nil {
		return dose.View{}, err
	}
	return e.acc.View(), opErr
}

// StopTracking ends the session and commits its dose to the health store.
// A failed commit is logged; the session is still ended.
func (e *Engine) StopTracking(ctx context.Context) (dose.Session, error) {
	var final dose.Session
	var opErr error
	err := e.do(ctx, func() {
		final, opErr = e.acc.End(ctx)
		if opErr != nil {
			return
		}
		if final.Dose > 0 {
			e.commitDose(ctx, health.Sample{IU: final.Dose, At: final.LastUpdate, Manual: false})
		}
		e.syncHealth(ctx)
		e.publish(ctx)
	})
	if err != nil {
		return dose.Session{}, err
	}
	return final, opErr
}

// Exposure is a retroactive exposure entry.
type Exposure struct {
	// UV is the UV index during the exposure. Nil uses the current UV.
	UV      *float64
	Minutes float64
	At      time.Time
}

// LogExposure computes the dose for a past exposure with the current
// profile and appends it to the health store as a manual entry.
func (e *Engine) LogExposure(ctx context.Context, in Exposure) (float64, error) {
	if in.Minutes <= 0 {
		return 0, ErrInvalidExposure
	}

	var iu float64
	err := e.do(ctx, func() {
		at := e.inZone(in.At)
		if in.At.IsZero() {
			at = e.localNow()
		}
		index := e.acc.View().LastUV
		if in.UV != nil {
			index = *in.UV
		}

		iu = dose.CalculateVitaminD(index, in.Minutes, e.acc.Profile(), at)
		if iu > 0 {
			e.commitDose(ctx, health.Sample{IU: iu, At: at, Manual: true})
		}
		e.publish(ctx)
	})
	return iu, err
}

func (e *Engine) commitDose(ctx context.Context, s health.Sample) {
	e.metrics.RecordDose(ctx, s.IU, s.Manual)
	if e.health == nil {
		return
	}
	if err := e.health.AppendDose(ctx, s); err != nil {
		e.logger.Warn().Err(err).Float64("iu", s.IU).Msg("failed to commit dose to health store")
	}
}

// Profile returns the profile in use.
func (e *Engine) Profile() dose.Profile {
	return e.acc.Profile()
}

// ProfileUpdate holds user edits. Nil fields are left unchanged. Setting a
// field clears its health-store flag.
type ProfileUpdate struct {
	SkinType  *dose.SkinType
	Clothing  *dose.Clothing
	Sunscreen *dose.Sunscreen
	Age       *int
}

// UpdateProfile applies user edits and persists the profile.
func (e *Engine) UpdateProfile(ctx context.Context, u ProfileUpdate) (dose.Profile, error) {
	var out dose.Profile
	var opErr error
	err := e.do(ctx, func() {
		p := e.acc.Profile()
		if u.SkinType != nil {
			p.SkinType = *u.SkinType
			p.SkinTypeFromHealth = false
		}
		if u.Clothing != nil {
			p.Clothing = *u.Clothing
		}
		if u.Sunscreen != nil {
			p.Sunscreen = *u.Sunscreen
		}
		if u.Age != nil {
			age := *u.Age
			p.Age = &age
			p.AgeFromHealth = false
		}
		if opErr = p.Validate(); opErr != nil {
			return
		}

		e.acc.SetProfile(p)
		e.profileSaved = true
		if err := e.state.SaveProfile(ctx, p); err != nil {
			e.logger.Warn().Err(err).Msg("failed to persist profile")
		}
		e.publish(ctx)
		out = p
	})
	if err != nil {
		return dose.Profile{}, err
	}
	return out, opErr
}

// Session returns the accumulator view.
func (e *Engine) Session() dose.View {
	return e.acc.View()
}

// UV returns the last published UV result.
func (e *Engine) UV() uv.Result {
	return e.uv.Current()
}

// Status summarises host state.
type Status struct {
	Mode             uv.Mode   `json:"mode"`
	Online           bool      `json:"online"`
	Foreground       bool      `json:"foreground"`
	PermissionDenied bool      `json:"permissionDenied"`
	Tracking         bool      `json:"tracking"`
	LastSuccessAt    time.Time `json:"lastSuccessAt,omitempty"`
}

// Status returns the current host state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	err := e.do(ctx, func() {
		st = Status{
			Mode:             e.uv.Current().Mode,
			Online:           e.gate.Online(),
			Foreground:       e.foreground,
			PermissionDenied: e.permissionDenied,
			Tracking:         e.acc.View().State == dose.StateTracking,
			LastSuccessAt:    e.uv.LastSuccessAt(),
		}
	})
	return st, err
}
