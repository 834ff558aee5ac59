package alert_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/metric"
)

func TestRedisGate_SuppressesWithinWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gate := alert.NewRedisGate(alert.RedisGateConfig{
		Client: client,
		Window: 10 * time.Minute,
	})
	ctx := context.Background()

	key := alert.DedupKey{UserID: "usr_a", MetricType: metric.TypeHeartRate, Severity: alert.SeverityHigh}

	ok, err := gate.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	other := key
	other.Severity = alert.SeverityMedium
	ok, err = gate.Allow(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok, "different severity is a different condition")

	mr.FastForward(11 * time.Minute)

	ok, err = gate.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "window expired")
}

func TestRedisGate_Release(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gate := alert.NewRedisGate(alert.RedisGateConfig{Client: client, Window: 10 * time.Minute})
	ctx := context.Background()
	key := alert.DedupKey{UserID: "usr_a", MetricType: metric.TypeHeartRate, Severity: alert.SeverityHigh}

	ok, err := gate.Allow(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, gate.Release(ctx, key))
	assert.False(t, mr.Exists(alert.DefaultDedupKeyPrefix+key.String()))

	ok, err = gate.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "released key can be claimed again")

	// Releasing an unclaimed key is not an error.
	require.NoError(t, gate.Release(ctx, alert.DedupKey{UserID: "usr_b"}))
}

func TestRedisGate_Defaults(t *testing.T) {
	gate := alert.NewRedisGate(alert.RedisGateConfig{})
	assert.Equal(t, 15*time.Minute, gate.Window())
}

func TestRedisGate_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	gate := alert.NewRedisGate(alert.RedisGateConfig{Client: client})
	_, err = gate.Allow(context.Background(), alert.DedupKey{UserID: "usr_a"})
	assert.Error(t, err)
}
