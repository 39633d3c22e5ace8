package resilience_test

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/runcoach/internal/provider/resilience"
)

func TestRegistry_ClientRegistersItself(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("luchtmeetnet")
	cfg.Registry = registry

	client := resilience.NewClient(cfg)

	assert.Equal(t, 1, registry.ProviderCount())
	assert.Equal(t, "luchtmeetnet", client.Name())

	health := registry.GetHealth("luchtmeetnet")
	require.NotNil(t, health)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.Equal(t, "healthy", health.Status())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("openweathermap")
	cfg.Registry = registry
	_ = resilience.NewClient(cfg)

	registry.RecordSuccess("openweathermap")
	registry.RecordFailure("openweathermap", assert.AnError)

	health := registry.GetHealth("openweathermap")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)

	// Unknown providers are ignored.
	registry.RecordSuccess("nonexistent")
	registry.RecordFailure("nonexistent", assert.AnError)
	assert.Nil(t, registry.GetHealth("nonexistent"))
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"openweathermap", "luchtmeetnet", "openrouteservice"} {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		_ = resilience.NewClient(cfg)
	}

	all := registry.GetAllHealth()
	require.Len(t, all, 3)
	assert.Equal(t, "luchtmeetnet", all[0].Name)
	assert.Equal(t, "openrouteservice", all[1].Name)
	assert.Equal(t, "openweathermap", all[2].Name)

	registry.Unregister("luchtmeetnet")
	assert.Equal(t, 2, registry.ProviderCount())
}

func TestProviderHealth_States(t *testing.T) {
	tests := []struct {
		state  gobreaker.State
		status string
	}{
		{gobreaker.StateClosed, "healthy"},
		{gobreaker.StateHalfOpen, "degraded"},
		{gobreaker.StateOpen, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.status, h.Status())
			assert.Equal(t, tt.state == gobreaker.StateClosed, h.IsHealthy())
			assert.Equal(t, tt.state == gobreaker.StateHalfOpen, h.IsDegraded())
			assert.Equal(t, tt.state == gobreaker.StateOpen, h.IsUnhealthy())
		})
	}
}
