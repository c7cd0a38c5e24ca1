package handler

import (
	"net/http"

	"github.com/sundose/sundose/internal/api/models"
	"github.com/sundose/sundose/internal/api/response"
	"github.com/sundose/sundose/internal/dose"
	"github.com/sundose/sundose/internal/engine"
)

// ProfileHandler handles the physiological profile.
type ProfileHandler struct {
	engine Engine
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(eng Engine) *ProfileHandler {
	return &ProfileHandler{engine: eng}
}

// GetProfile handles GET /v1/profile.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, profileModel(h.engine.Profile()))
}

// UpdateProfile handles PUT /v1/profile. Omitted fields keep their value.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var input models.ProfileInput
	if !response.Decode(w, r, &input, false) {
		return
	}

	update, fieldErrors := parseProfileInput(&input)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	profile, err := h.engine.UpdateProfile(r.Context(), update)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, profileModel(profile))
}

// parseProfileInput converts the input into an engine update and collects
// field errors.
func parseProfileInput(input *models.ProfileInput) (engine.ProfileUpdate, []models.FieldError) {
	var update engine.ProfileUpdate
	var fieldErrors []models.FieldError

	if input.SkinType != nil {
		st, err := dose.ParseSkinType(*input.SkinType)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "skinType", Message: "must be between 1 and 6"})
		} else {
			update.SkinType = &st
		}
	}
	if input.Clothing != nil {
		c, err := dose.ParseClothing(*input.Clothing)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field:   "clothing",
				Message: "must be one of none, minimal, light, moderate, heavy",
			})
		} else {
			update.Clothing = &c
		}
	}
	if input.Sunscreen != nil {
		s, err := dose.ParseSunscreen(*input.Sunscreen)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field:   "sunscreen",
				Message: "must be one of none, spf15, spf30, spf50, spf100",
			})
		} else {
			update.Sunscreen = &s
		}
	}
	if input.Age != nil {
		if *input.Age < 0 || *input.Age > 130 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "age", Message: "must be between 0 and 130"})
		} else {
			age := *input.Age
			update.Age = &age
		}
	}
	return update, fieldErrors
}
