// Package main provides the entrypoint for the SunDose cache worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sundose/sundose/internal/config"
	"github.com/sundose/sundose/internal/database"
	"github.com/sundose/sundose/internal/envcache"
	"github.com/sundose/sundose/internal/provider/resilience"
	"github.com/sundose/sundose/internal/telemetry"
	"github.com/sundose/sundose/internal/uv"
	"github.com/sundose/sundose/internal/uv/openmeteo"
	"github.com/sundose/sundose/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "sundose-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting SunDose worker")

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
		log.Error().Err(err).Msg("worker exited with error")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	log.Info().Msg("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	repo, closeRepo, err := openCacheRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	metrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		return err
	}

	httpConfig := resilience.DefaultClientConfig(openmeteo.ProviderName)
	httpConfig.Timeout = cfg.Forecast.Timeout
	httpConfig.MaxRetries = cfg.Forecast.MaxRetries

	service := uv.NewService(uv.ServiceConfig{
		Provider: openmeteo.NewClient(openmeteo.ClientConfig{
			BaseURL:    cfg.Forecast.BaseURL,
			HTTPClient: resilience.NewClient(httpConfig),
			Logger:     log,
		}),
		Cache:   envcache.NewStore(envcache.StoreConfig{Repository: repo, Logger: log}),
		Logger:  log,
		Metrics: metrics,
	})

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Targets:     refreshTargets(cfg.Worker.Points),
			Concurrency: cfg.Worker.Concurrency,
			Timeout:     cfg.Worker.Timeout,
		},
		Logger: log,
		Warmer: service,
	})
	dispatcher := worker.NewDispatcher(job, log)

	// The worker exposes a health endpoint for Cloud Run.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":%q}`, Version)
	})
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("health server forced to shutdown")
		}
	}()

	if cfg.Worker.ProjectID == "" {
		// Without Pub/Sub, refresh on a fixed schedule.
		log.Warn().Msg("GCP_PROJECT_ID not set, refreshing every hour")
		return runScheduled(ctx, job, time.Hour)
	}

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.Worker.ProjectID,
		SubscriptionName: cfg.Worker.SubscriptionID,
		Dispatcher:       dispatcher,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	defer handler.Close()

	if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runScheduled(ctx context.Context, job *worker.RefreshJob, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	job.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			job.Run(ctx)
		}
	}
}

func refreshTargets(points []config.PointConfig) []worker.RefreshTarget {
	if len(points) == 0 {
		return nil
	}
	target := worker.RefreshTarget{Name: "configured", Priority: 1}
	for _, p := range points {
		target.Points = append(target.Points, worker.Point{Lat: p.Lat, Lon: p.Lon, Altitude: p.Altitude})
	}
	return []worker.RefreshTarget{target}
}

// openCacheRepository opens the same cache the API server reads.
func openCacheRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) (envcache.Repository, func(), error) {
	switch cfg.Storage.Cache {
	case config.DriverPostgres:
		pg := cfg.Storage.Postgres
		pool, err := database.Connect(ctx, database.PostgresConfig{
			URL:             pg.URL,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: pg.MaxConnLifetime,
			ConnectTimeout:  pg.ConnectTimeout,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		repo := envcache.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo := envcache.NewSQLiteRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, func() { db.Close() }, nil
	default:
		return envcache.NewInMemoryRepository(), func() {}, nil
	}
}
