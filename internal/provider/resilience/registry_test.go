package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/provider/resilience"
)

func TestRegistry_ClientRegistersBreaker(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("sendgrid")
	cfg.Registry = registry

	client := resilience.NewClient(cfg)
	assert.Equal(t, "sendgrid", client.Name())
	assert.Equal(t, 1, registry.ProviderCount())

	health := registry.GetHealth("sendgrid")
	require.NotNil(t, health)
	assert.True(t, health.IsHealthy())
}

func TestRegistry_TracksBreakerState(t *testing.T) {
	registry := resilience.NewRegistry()

	cb := resilience.NewCircuitBreaker[string](resilience.CircuitBreakerConfig{
		Name:        "smtp",
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
	registry.Register("smtp", cb)

	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (string, error) { return "", errors.New("relay refused") })
	}

	health := registry.GetHealth("smtp")
	require.NotNil(t, health)
	assert.True(t, health.IsUnhealthy())
}

func TestRegistry_RecordSuccessAndFailure(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("mailgun", nil)

	health := registry.GetHealth("mailgun")
	require.NotNil(t, health)
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)

	registry.RecordSuccess("mailgun")
	registry.RecordFailure("mailgun", assert.AnError)

	health = registry.GetHealth("mailgun")
	require.NotNil(t, health.LastSuccessAt)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"smtp", "mailgun", "sendgrid"} {
		registry.Register(name, resilience.NewCircuitBreaker[string](resilience.DefaultCircuitBreakerConfig(name)))
	}

	all := registry.GetAllHealth()
	require.Len(t, all, 3)
	assert.Equal(t, "mailgun", all[0].Name)
	assert.Equal(t, "sendgrid", all[1].Name)
	assert.Equal(t, "smtp", all[2].Name)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.Nil(t, registry.GetHealth("nonexistent"))
	registry.RecordSuccess("nonexistent")
	registry.RecordFailure("nonexistent", assert.AnError)

	registry.Register("x", nil)
	registry.Unregister("x")
	assert.Equal(t, 0, registry.ProviderCount())
}

func TestProviderHealth_States(t *testing.T) {
	tests := []struct {
		state     gobreaker.State
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{gobreaker.StateClosed, true, false, false},
		{gobreaker.StateHalfOpen, false, true, false},
		{gobreaker.StateOpen, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.healthy, h.IsHealthy())
			assert.Equal(t, tt.degraded, h.IsDegraded())
			assert.Equal(t, tt.unhealthy, h.IsUnhealthy())
		})
	}
}
