package handler

import (
	"net/http"
	"time"

	"github.com/sundose/sundose/internal/api/models"
	"github.com/sundose/sundose/internal/api/response"
	"github.com/sundose/sundose/internal/engine"
)

// maxExposureMinutes bounds a single retroactive entry to one day.
const maxExposureMinutes = 24 * 60

// SessionHandler handles tracking sessions and retroactive exposures.
type SessionHandler struct {
	engine Engine
	now    func() time.Time
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(eng Engine) *SessionHandler {
	return &SessionHandler{engine: eng, now: time.Now}
}

// GetSession handles GET /v1/session.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, sessionModel(h.engine.Session()))
}

// Start handles POST /v1/session:start.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.StartTracking(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, sessionModel(view))
}

// Stop handles POST /v1/session:stop. The final dose is committed to the
// health store before the response is written.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	final, err := h.engine.StopTracking(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, endedSessionModel(final))
}

// LogExposure handles POST /v1/exposures.
func (h *SessionHandler) LogExposure(w http.ResponseWriter, r *http.Request) {
	var input models.ExposureInput
	if !response.Decode(w, r, &input, false) {
		return
	}

	now := h.now()
	if fieldErrors := validateExposureInput(&input, now); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	at := now
	if input.At != nil {
		at = input.At.Time()
	}
	iu, err := h.engine.LogExposure(r.Context(), engine.Exposure{
		UV:      input.UV,
		Minutes: input.Minutes,
		At:      at,
	})
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusCreated, models.Exposure{
		DoseIU:  iu,
		Minutes: input.Minutes,
		At:      models.Timestamp(at),
	})
}

func validateExposureInput(input *models.ExposureInput, now time.Time) []models.FieldError {
	var fieldErrors []models.FieldError

	if input.Minutes <= 0 || input.Minutes > maxExposureMinutes {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "minutes", Message: "must be between 0 and 1440"})
	}
	if input.UV != nil && (*input.UV < 0 || *input.UV > 25) {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "uv", Message: "must be between 0 and 25"})
	}
	if input.At != nil && input.At.Time().After(now) {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "at", Message: "must not be in the future"})
	}
	return fieldErrors
}
