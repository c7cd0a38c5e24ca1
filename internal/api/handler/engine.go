// Package handler provides HTTP handlers for the SunDose API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/sundose/sundose/internal/api/response"
	"github.com/sundose/sundose/internal/dose"
	"github.com/sundose/sundose/internal/engine"
	"github.com/sundose/sundose/internal/uv"
)

// Engine is the subset of the dose engine the handlers drive.
type Engine interface {
	Ready() <-chan struct{}
	Status(ctx context.Context) (engine.Status, error)

	UpdateLocation(ctx context.Context, loc uv.Location) (uv.Result, error)
	DenyLocation(ctx context.Context) error
	Refresh(ctx context.Context) (uv.Result, error)
	UV() uv.Result

	Profile() dose.Profile
	UpdateProfile(ctx context.Context, u engine.ProfileUpdate) (dose.Profile, error)

	Session() dose.View
	StartTracking(ctx context.Context) (dose.View, error)
	StopTracking(ctx context.Context) (dose.Session, error)
	LogExposure(ctx context.Context, in engine.Exposure) (float64, error)

	Foreground(ctx context.Context) error
	Background(ctx context.Context) error
	Widget(ctx context.Context) (engine.Widget, error)
}

var _ Engine = (*engine.Engine)(nil)

// writeEngineError maps engine and domain errors onto problem responses.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrPermissionDenied):
		response.Forbidden(w, r, "location permission denied")
	case errors.Is(err, uv.ErrInvalidCoordinates):
		response.BadRequest(w, r, "invalid coordinates", nil)
	case errors.Is(err, engine.ErrInvalidExposure),
		errors.Is(err, dose.ErrInvalidSkinType),
		errors.Is(err, dose.ErrInvalidClothing),
		errors.Is(err, dose.ErrInvalidSunscreen):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, uv.ErrNoLocation):
		response.NotFound(w, r, "no location has been reported")
	case errors.Is(err, dose.ErrAlreadyTracking), errors.Is(err, dose.ErrNotTracking):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, engine.ErrStopped),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		response.ServiceUnavailable(w, r, "engine unavailable")
	default:
		response.InternalError(w, r, "internal server error")
	}
}
