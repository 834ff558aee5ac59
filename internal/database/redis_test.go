package database_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/database"
)

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	assert.False(t, database.RedisConfigFromEnv().Enabled())

	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "3")
	cfg := database.RedisConfigFromEnv()
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "cache:6379", cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := database.ConnectRedis(context.Background(), database.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConnectRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := database.ConnectRedis(context.Background(), database.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
