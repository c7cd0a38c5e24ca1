package handler

import (
	"net/http"

	"github.com/sundose/sundose/internal/api/models"
	"github.com/sundose/sundose/internal/api/response"
	"github.com/sundose/sundose/internal/uv"
)

// UVHandler handles location fixes and UV reads.
type UVHandler struct {
	engine Engine
}

// NewUVHandler creates a new UVHandler.
func NewUVHandler(eng Engine) *UVHandler {
	return &UVHandler{engine: eng}
}

// PutLocation handles PUT /v1/location. A granted fix triggers a fetch and
// the response carries its result. A denied permission stops retries.
func (h *UVHandler) PutLocation(w http.ResponseWriter, r *http.Request) {
	var input models.LocationInput
	if !response.Decode(w, r, &input, false) {
		return
	}

	if input.Permission == models.LocationPermissionDenied {
		if err := h.engine.DenyLocation(r.Context()); err != nil {
			writeEngineError(w, r, err)
			return
		}
		response.JSON(w, r, http.StatusOK, uvReport(h.engine.UV()))
		return
	}

	if fieldErrors := validateLocationInput(&input); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	res, err := h.engine.UpdateLocation(r.Context(), uv.Location{
		Lat:      *input.Lat,
		Lon:      *input.Lon,
		Altitude: input.Altitude,
		Label:    input.Label,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, uvReport(res))
}

// Refresh handles POST /v1/uv:refresh - retry the last location now.
func (h *UVHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Refresh(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, uvReport(res))
}

// GetUV handles GET /v1/uv - the last published snapshot and its mode.
func (h *UVHandler) GetUV(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, uvReport(h.engine.UV()))
}

func validateLocationInput(input *models.LocationInput) []models.FieldError {
	var fieldErrors []models.FieldError

	switch {
	case input.Lat == nil:
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lat", Message: "is required"})
	case *input.Lat < -90 || *input.Lat > 90:
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lat", Message: "must be between -90 and 90"})
	}

	switch {
	case input.Lon == nil:
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lon", Message: "is required"})
	case *input.Lon < -180 || *input.Lon > 180:
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lon", Message: "must be between -180 and 180"})
	}

	if input.Permission != "" && input.Permission != models.LocationPermissionGranted {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "permission", Message: "must be granted or denied"})
	}
	return fieldErrors
}
