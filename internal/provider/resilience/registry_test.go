package resilience_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundose/sundose/internal/provider/resilience"
)

func TestRegistry_RegisterOnConstruction(t *testing.T) {
	registry := resilience.NewRegistry()

	for _, name := range []string{"probe", "openmeteo"} {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		resilience.NewClient(cfg)
	}

	all := registry.All()
	require.Len(t, all, 2)
	assert.Equal(t, "openmeteo", all[0].Name)
	assert.Equal(t, "probe", all[1].Name)
	assert.Equal(t, resilience.StatusHealthy, all[0].Status)
	assert.Equal(t, "closed", all[0].CircuitState)
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("openmeteo")
	cfg.Registry = registry
	resilience.NewClient(cfg)

	registry.RecordFailure("openmeteo", errors.New("connection refused"))
	health, ok := registry.Health("openmeteo")
	require.True(t, ok)
	assert.Nil(t, health.LastSuccessAt)
	require.NotNil(t, health.LastFailureAt)
	assert.Equal(t, "connection refused", health.LastError)

	registry.RecordSuccess("openmeteo")
	health, _ = registry.Health("openmeteo")
	assert.NotNil(t, health.LastSuccessAt)

	// Unknown names are ignored.
	registry.RecordSuccess("missing")
	_, ok = registry.Health("missing")
	assert.False(t, ok)
}
