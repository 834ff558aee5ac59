package database

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// RedisConfig holds Redis connection configuration. An empty Addr means
// Redis is not configured.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisConfigFromEnv creates a RedisConfig from environment variables.
func RedisConfigFromEnv() RedisConfig {
	db, _ := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	return RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}
}

// Enabled reports whether an address is set.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// ConnectRedis creates a Redis client and verifies it answers PING.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
