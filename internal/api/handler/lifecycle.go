package handler

import (
	"net/http"

	"github.com/sundose/sundose/internal/api/response"
)

// LifecycleHandler relays host lifecycle transitions and serves the widget.
type LifecycleHandler struct {
	engine Engine
}

// NewLifecycleHandler creates a new LifecycleHandler.
func NewLifecycleHandler(eng Engine) *LifecycleHandler {
	return &LifecycleHandler{engine: eng}
}

// Foreground handles POST /v1/lifecycle/foreground.
func (h *LifecycleHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Foreground(r.Context()); err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// Background handles POST /v1/lifecycle/background.
func (h *LifecycleHandler) Background(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Background(r.Context()); err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// Widget handles GET /v1/widget.
func (h *LifecycleHandler) Widget(w http.ResponseWriter, r *http.Request) {
	widget, err := h.engine.Widget(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, widgetModel(widget))
}
