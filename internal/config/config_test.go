package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundose/sundose/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(config.ConfigFileEnv, "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, config.DriverSQLite, cfg.Storage.Cache)
	assert.Equal(t, config.DriverMemory, cfg.Storage.Health)
	assert.Equal(t, config.SinkLog, cfg.Notify.Sink)
	assert.Equal(t, 30*time.Second, cfg.Connectivity.Interval)
	assert.True(t, cfg.UsesSQLite())
	assert.False(t, cfg.UsesPostgres())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sundose.yaml")
	yaml := `
app:
  port: "9090"
storage:
  cache: postgres
  state: valkey
  valkeyAddr: cache:6379
engine:
  tickInterval: 2s
worker:
  concurrency: 5
  points:
    - name: Bogota
      lat: 4.711
      lon: -74.0721
      altitude: 2640
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv(config.ConfigFileEnv, path)
	t.Setenv("APP_PORT", "7070")
	t.Setenv("SUNDOSE_AMBIENT_INTERVAL", "90s")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.App.Port)
	assert.Equal(t, config.DriverPostgres, cfg.Storage.Cache)
	assert.Equal(t, config.DriverValkey, cfg.Storage.State)
	assert.Equal(t, 2*time.Second, cfg.Engine.TickInterval)
	assert.Equal(t, 90*time.Second, cfg.Engine.AmbientInterval)
	assert.Equal(t, 5, cfg.Worker.Concurrency)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRatio)
	require.Len(t, cfg.Worker.Points, 1)
	require.NotNil(t, cfg.Worker.Points[0].Altitude)
	assert.Equal(t, 2640.0, *cfg.Worker.Points[0].Altitude)
	assert.True(t, cfg.UsesPostgres())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv(config.ConfigFileEnv, "")
	t.Setenv("SUNDOSE_TICK_INTERVAL", "soon")
	t.Setenv("REQUIRE_TLS", "maybe")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUNDOSE_TICK_INTERVAL")
	assert.Contains(t, err.Error(), "REQUIRE_TLS")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(config.ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := config.Load()
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	cfg.Storage.Cache = "cassandra"
	cfg.Notify.Sink = config.SinkMQTT
	cfg.Worker.Concurrency = 0
	cfg.Telemetry.SampleRatio = 2
	cfg.Worker.Points = []config.PointConfig{{Lat: 100}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.cache")
	assert.Contains(t, err.Error(), "notify.mqtt.broker")
	assert.Contains(t, err.Error(), "worker.concurrency")
	assert.Contains(t, err.Error(), "telemetry.sampleRatio")
	assert.Contains(t, err.Error(), "worker.points[0]")
}
