package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/valkey-io/valkey-go"

	"github.com/sundose/sundose/internal/config"
	"github.com/sundose/sundose/internal/database"
	"github.com/sundose/sundose/internal/envcache"
	"github.com/sundose/sundose/internal/health"
	"github.com/sundose/sundose/internal/notify"
	"github.com/sundose/sundose/internal/state"
)

// schemaCreator is implemented by the SQL-backed stores.
type schemaCreator interface {
	EnsureSchema(ctx context.Context) error
}

func postgresConfig(cfg *config.Config) database.PostgresConfig {
	pg := cfg.Storage.Postgres
	return database.PostgresConfig{
		URL:             pg.URL,
		MaxConns:        pg.MaxConns,
		MinConns:        pg.MinConns,
		MaxConnLifetime: pg.MaxConnLifetime,
		ConnectTimeout:  pg.ConnectTimeout,
	}
}

func ensureSchema(ctx context.Context, s schemaCreator, name string) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("create %s schema: %w", name, err)
	}
	return nil
}

func provideCacheRepository(ctx context.Context, cfg *config.Config, db *sql.DB, pool *pgxpool.Pool, log zerolog.Logger) (envcache.Repository, error) {
	switch cfg.Storage.Cache {
	case config.DriverSQLite:
		repo := envcache.NewSQLiteRepository(db)
		if err := ensureSchema(ctx, repo, "cache"); err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Storage.SQLitePath).Msg("environmental cache on sqlite")
		return repo, nil
	case config.DriverPostgres:
		repo := envcache.NewPostgresRepository(pool)
		if err := ensureSchema(ctx, repo, "cache"); err != nil {
			return nil, err
		}
		log.Info().Msg("environmental cache on postgres")
		return repo, nil
	default:
		log.Warn().Msg("environmental cache in memory, offline data is lost on restart")
		return envcache.NewInMemoryRepository(), nil
	}
}

// provideStateBackend returns the backend and a close function.
func provideStateBackend(ctx context.Context, cfg *config.Config, db *sql.DB, log zerolog.Logger) (state.Backend, func(), error) {
	switch cfg.Storage.State {
	case config.DriverSQLite:
		backend := state.NewSQLiteBackend(db)
		if err := ensureSchema(ctx, backend, "state"); err != nil {
			return nil, nil, err
		}
		return backend, func() {}, nil
	case config.DriverValkey:
		client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{cfg.Storage.ValkeyAddr}})
		if err != nil {
			return nil, nil, fmt.Errorf("create valkey client: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping valkey: %w", err)
		}
		log.Info().Str("addr", cfg.Storage.ValkeyAddr).Msg("state on valkey")
		return state.NewValkeyBackend(client, cfg.Storage.ValkeyPrefix), client.Close, nil
	default:
		log.Warn().Msg("state in memory, sessions do not survive restarts")
		return state.NewMemoryBackend(), func() {}, nil
	}
}

func provideHealthStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log zerolog.Logger) (health.Store, error) {
	if cfg.Storage.Health == config.DriverPostgres {
		store := health.NewPostgresStore(pool)
		if err := ensureSchema(ctx, store, "health"); err != nil {
			return nil, err
		}
		log.Info().Msg("health store on postgres")
		return store, nil
	}
	return health.NewMemoryStore(), nil
}

// provideSink returns the alert sink and a close function.
func provideSink(cfg *config.Config, log zerolog.Logger) (notify.Sink, func(), error) {
	if cfg.Notify.Sink != config.SinkMQTT {
		return notify.NewLogSink(log), func() {}, nil
	}

	sink, err := notify.NewMQTTSink(notify.MQTTConfig{
		Broker:      cfg.Notify.MQTT.Broker,
		ClientID:    cfg.Notify.MQTT.ClientID,
		Username:    cfg.Notify.MQTT.Username,
		Password:    cfg.Notify.MQTT.Password,
		TopicPrefix: cfg.Notify.MQTT.TopicPrefix,
		Timeout:     cfg.Notify.MQTT.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect mqtt sink: %w", err)
	}
	log.Info().Str("broker", cfg.Notify.MQTT.Broker).Msg("alerts published over mqtt")
	return sink, sink.Close, nil
}
