// Package main provides the entrypoint for the SunDose API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sundose/sundose/internal/api"
	"github.com/sundose/sundose/internal/api/middleware"
	"github.com/sundose/sundose/internal/config"
	"github.com/sundose/sundose/internal/connectivity"
	"github.com/sundose/sundose/internal/database"
	"github.com/sundose/sundose/internal/engine"
	"github.com/sundose/sundose/internal/envcache"
	"github.com/sundose/sundose/internal/notify"
	"github.com/sundose/sundose/internal/provider/resilience"
	"github.com/sundose/sundose/internal/state"
	"github.com/sundose/sundose/internal/telemetry"
	"github.com/sundose/sundose/internal/uv"
	"github.com/sundose/sundose/internal/uv/openmeteo"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "sundose-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting SunDose API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}
	pipelineMetrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		return err
	}

	var db *sql.DB
	if cfg.UsesSQLite() {
		db, err = database.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	var pool *pgxpool.Pool
	if cfg.UsesPostgres() {
		pool, err = database.Connect(ctx, postgresConfig(cfg), log)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	cacheRepo, err := provideCacheRepository(ctx, cfg, db, pool, log)
	if err != nil {
		return err
	}
	backend, closeBackend, err := provideStateBackend(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer closeBackend()
	healthStore, err := provideHealthStore(ctx, cfg, pool, log)
	if err != nil {
		return err
	}
	sink, closeSink, err := provideSink(cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	registry := resilience.NewRegistry()
	forecastHTTP := resilience.DefaultClientConfig(openmeteo.ProviderName)
	forecastHTTP.Timeout = cfg.Forecast.Timeout
	forecastHTTP.MaxRetries = cfg.Forecast.MaxRetries
	forecastHTTP.Registry = registry

	probeHTTP := resilience.DefaultClientConfig("connectivity-probe")
	probeHTTP.Timeout = cfg.Connectivity.Timeout
	probeHTTP.MaxRetries = 1
	probeHTTP.Registry = registry

	uvService := uv.NewService(uv.ServiceConfig{
		Provider: openmeteo.NewClient(openmeteo.ClientConfig{
			BaseURL:    cfg.Forecast.BaseURL,
			HTTPClient: resilience.NewClient(forecastHTTP),
			Logger:     log,
		}),
		Cache: envcache.NewStore(envcache.StoreConfig{
			Repository: cacheRepo,
			Logger:     log,
		}),
		Logger:             log,
		Metrics:            pipelineMetrics,
		MinRefreshInterval: cfg.Forecast.MinRefreshInterval,
	})

	stateStore := state.NewStore(backend)
	scheduler := notify.NewTimerScheduler(sink, log)
	defer scheduler.Close()

	eng := engine.New(engine.Config{
		UV:     uvService,
		State:  stateStore,
		Health: healthStore,
		Notifier: notify.NewTrigger(notify.TriggerConfig{
			Scheduler: scheduler,
			Markers:   stateStore,
			Logger:    log,
		}),
		Metrics:         pipelineMetrics,
		Logger:          log,
		TickInterval:    cfg.Engine.TickInterval,
		PersistInterval: cfg.Engine.PersistInterval,
		AmbientInterval: cfg.Engine.AmbientInterval,
		FetchTimeout:    cfg.Engine.FetchTimeout,
		OnWidget: func(w engine.Widget) {
			log.Debug().
				Float64("current_uv", w.CurrentUV).
				Float64("today_iu", w.TodayTotalIU).
				Str("mode", string(w.Mode)).
				Msg("widget updated")
		},
	})

	monitor := connectivity.NewMonitor(connectivity.MonitorConfig{
		Gate:     eng.Gate(),
		Prober:   resilience.NewClient(probeHTTP),
		URL:      cfg.Connectivity.ProbeURL,
		Interval: cfg.Connectivity.Interval,
		Timeout:  cfg.Connectivity.Timeout,
		Logger:   log,
	})

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()
	go monitor.Run(ctx)

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: "sundose-api",
		Metrics:     httpMetrics,
		Engine:      eng,
		Registry:    registry,
		RequireTLS:  cfg.App.RequireTLS,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return err
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-engineDone
}
