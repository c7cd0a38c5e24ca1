package handler

import (
	"net/http"
	"time"

	"github.com/sundose/sundose/internal/api/models"
	"github.com/sundose/sundose/internal/api/response"
	"github.com/sundose/sundose/internal/provider/resilience"
	"github.com/sundose/sundose/internal/uv"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	engine    Engine
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, eng Engine, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		engine:    eng,
		registry:  registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once the
// engine has restored its persisted state.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.engine.Ready():
	default:
		response.ServiceUnavailable(w, r, "engine is restoring state")
		return
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - pipeline mode and provider health.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Status(r.Context())
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Mode:   string(st.Mode),
		Online: st.Online,
		Subsystems: []models.SubsystemStatus{
			{Name: "connectivity", Status: connectivityStatus(st.Online)},
			{Name: "uv-pipeline", Status: modeStatus(st.Mode)},
		},
		Providers: []models.ProviderStatus{},
	}

	if h.registry != nil {
		for _, p := range h.registry.All() {
			ps := models.ProviderStatus{
				Provider:     p.Name,
				Status:       providerStatus(p.Status),
				CircuitState: p.CircuitState,
			}
			if p.LastSuccessAt != nil {
				ps.LastSuccessAt = models.TimestampPtr(*p.LastSuccessAt)
			}
			if p.LastFailureAt != nil {
				ps.LastFailureAt = models.TimestampPtr(*p.LastFailureAt)
			}
			if p.LastError != "" {
				msg := p.LastError
				ps.Message = &msg
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	for _, s := range status.Subsystems {
		status.Status = worst(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		status.Status = worst(status.Status, p.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func connectivityStatus(online bool) models.HealthStatus {
	if online {
		return models.HealthStatusOK
	}
	return models.HealthStatusDegraded
}

func modeStatus(mode uv.Mode) models.HealthStatus {
	switch mode {
	case uv.ModeLive:
		return models.HealthStatusOK
	case uv.ModeOffline:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

func providerStatus(s resilience.Status) models.HealthStatus {
	switch s {
	case resilience.StatusHealthy:
		return models.HealthStatusOK
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusFail
	}
}

// worst never reports FAIL for the whole service; a failing upstream
// degrades it.
func worst(a, b models.HealthStatus) models.HealthStatus {
	if a == models.HealthStatusOK && b != models.HealthStatusOK {
		return models.HealthStatusDegraded
	}
	return a
}
