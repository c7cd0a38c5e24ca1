package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundose/sundose/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_test123").
		WithDetail("lat must be between -90 and 90").
		WithInstance("/v1/location").
		WithErrors([]models.FieldError{{Field: "lat", Message: "out of range", Code: "OUT_OF_RANGE"}})

	assert.Equal(t, "lat must be between -90 and 90", p.Detail)
	assert.Equal(t, "/v1/location", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "OUT_OF_RANGE", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "clothing", Message: "unknown level"},
	})
	p.Instance = "/v1/profile"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var result models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, models.ProblemTypeValidation, result.Type)
	assert.Equal(t, "/v1/profile", result.Instance)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "clothing", result.Errors[0].Field)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name    string
		problem *models.Problem
		typ     string
		title   string
		status  int
	}{
		{"bad request", models.NewBadRequest("req", "d", nil), models.ProblemTypeValidation, "Validation error", http.StatusBadRequest},
		{"forbidden", models.NewForbidden("req", "d"), models.ProblemTypeForbidden, "Permission denied", http.StatusForbidden},
		{"not found", models.NewNotFound("req", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"conflict", models.NewConflict("req", "d"), models.ProblemTypeConflict, "Conflict", http.StatusConflict},
		{"too many", models.NewTooManyRequests("req", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("req", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, tt.title, tt.problem.Title)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "req", tt.problem.TraceID)
		})
	}
}

func TestForStatus(t *testing.T) {
	p := models.ForStatus(http.StatusUnsupportedMediaType, "req", "json only")
	assert.Equal(t, models.ProblemTypeUnsupportedMedia, p.Type)
	assert.Equal(t, "json only", p.Detail)

	p = models.ForStatus(http.StatusTeapot, "req", "")
	assert.Equal(t, models.ProblemTypeInternal, p.Type)
	assert.Equal(t, http.StatusText(http.StatusTeapot), p.Title)
	assert.Equal(t, http.StatusTeapot, p.Status)
}

func TestTimestamp(t *testing.T) {
	ts := models.Timestamp(time.Date(2026, 6, 21, 14, 30, 0, 0, time.UTC))
	raw, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-06-21T14:30:00Z"`, string(raw))

	var decoded models.Timestamp
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.Time().Equal(ts.Time()))

	var input models.ExposureInput
	require.NoError(t, json.Unmarshal([]byte(`{"minutes":20,"at":null}`), &input))
	assert.Nil(t, input.At)

	assert.Error(t, json.Unmarshal([]byte(`{"minutes":20,"at":12}`), &input))
	assert.Nil(t, models.TimestampPtr(time.Time{}))
}
