// Package api provides the HTTP API for SunDose.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sundose/sundose/internal/api/handler"
	"github.com/sundose/sundose/internal/api/middleware"
	"github.com/sundose/sundose/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Engine serves every domain route. Required.
	Engine handler.Engine

	// Registry reports upstream health on /v1/ops/status (optional).
	Registry *resilience.Registry

	// RequireTLS rejects plain HTTP requests that did not arrive through a
	// TLS-terminating proxy.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "sundose-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Engine, cfg.Registry)
	uvHandler := handler.NewUVHandler(cfg.Engine)
	profileHandler := handler.NewProfileHandler(cfg.Engine)
	sessionHandler := handler.NewSessionHandler(cfg.Engine)
	lifecycleHandler := handler.NewLifecycleHandler(cfg.Engine)

	readRateLimit := middleware.RateLimit(middleware.ReadRateLimit)
	writeRateLimit := middleware.RateLimit(middleware.WriteRateLimit)
	fetchRateLimit := middleware.RateLimit(middleware.FetchRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints are not rate limited so probes never see 429.
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Reads polled by the companion.
		r.Group(func(r chi.Router) {
			r.Use(readRateLimit)
			r.Get("/uv", uvHandler.GetUV)
			r.Get("/profile", profileHandler.GetProfile)
			r.Get("/session", sessionHandler.GetSession)
			r.Get("/widget", lifecycleHandler.Widget)
		})

		// Endpoints that reach the forecast provider.
		r.Group(func(r chi.Router) {
			r.Use(fetchRateLimit)
			r.With(middleware.RequireJSON).Put("/location", uvHandler.PutLocation)
			r.Post("/uv:refresh", uvHandler.Refresh)
		})

		// State changes.
		r.Group(func(r chi.Router) {
			r.Use(writeRateLimit)
			r.With(middleware.RequireJSON).Put("/profile", profileHandler.UpdateProfile)
			r.With(middleware.RequireJSON).Post("/exposures", sessionHandler.LogExposure)
			r.Post("/session:start", sessionHandler.Start)
			r.Post("/session:stop", sessionHandler.Stop)
			r.Post("/lifecycle/foreground", lifecycleHandler.Foreground)
			r.Post("/lifecycle/background", lifecycleHandler.Background)
		})
	})

	return r
}
