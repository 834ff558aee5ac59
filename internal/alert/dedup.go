package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/telecare/telecare/internal/metric"
)

// DefaultDedupKeyPrefix namespaces dedup keys in Redis.
const DefaultDedupKeyPrefix = "telecare:alert-dedup:"

// DedupKey identifies an alert condition for deduplication.
type DedupKey struct {
	UserID     string
	MetricType metric.Type
	Severity   Severity
}

func (k DedupKey) String() string {
	return k.UserID + ":" + string(k.MetricType) + ":" + string(k.Severity)
}

// Gate decides whether an alert for a condition may be raised now.
type Gate interface {
	// Allow claims key for the window. False means it is already claimed.
	Allow(ctx context.Context, key DedupKey) (bool, error)

	// Release drops a claim whose alert was never stored.
	Release(ctx context.Context, key DedupKey) error
}

// RedisGateConfig holds configuration for the Redis dedup gate.
type RedisGateConfig struct {
	Client    *redis.Client
	Window    time.Duration
	KeyPrefix string
}

// RedisGate allows one alert per key per window using SET NX PX.
type RedisGate struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisGate creates a new Redis-backed dedup gate.
func NewRedisGate(cfg RedisGateConfig) *RedisGate {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultDedupKeyPrefix
	}
	window := cfg.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisGate{
		client: cfg.Client,
		window: window,
		prefix: prefix,
	}
}

// Allow returns true for the first call per key within the window.
func (g *RedisGate) Allow(ctx context.Context, key DedupKey) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+key.String(), time.Now().Unix(), g.window).Result()
	if err != nil {
		return false, fmt.Errorf("checking dedup window: %w", err)
	}
	return ok, nil
}

// Release deletes the claim for key so the next reading can raise the alert.
func (g *RedisGate) Release(ctx context.Context, key DedupKey) error {
	if err := g.client.Del(ctx, g.prefix+key.String()).Err(); err != nil {
		return fmt.Errorf("releasing dedup window: %w", err)
	}
	return nil
}

// Window returns the dedup window length.
func (g *RedisGate) Window() time.Duration {
	return g.window
}

var _ Gate = (*RedisGate)(nil)
