// Package app assembles the alerting core shared by the API and worker
// processes: stores, threshold evaluation, notification and ingestion.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/database"
	"github.com/telecare/telecare/internal/email"
	"github.com/telecare/telecare/internal/email/providers"
	"github.com/telecare/telecare/internal/featureflags"
	"github.com/telecare/telecare/internal/gamification"
	"github.com/telecare/telecare/internal/ingest"
	"github.com/telecare/telecare/internal/metric"
	"github.com/telecare/telecare/internal/notify"
	"github.com/telecare/telecare/internal/provider/resilience"
	"github.com/telecare/telecare/internal/realtime"
	"github.com/telecare/telecare/internal/threshold"
	"github.com/telecare/telecare/internal/user"
	"github.com/telecare/telecare/internal/worker"
)

// Settings are the tunables of the alerting core.
type Settings struct {
	// ThresholdsFile overrides the default rule table when set.
	ThresholdsFile string

	// DedupWindow enables the Redis dedup gate when positive and Redis is configured.
	DedupWindow time.Duration

	// EmailMinSeverity is the lowest severity that is emailed.
	EmailMinSeverity alert.Severity

	Email        providers.Config
	Gamification gamification.PubSubConfig
	Pool         worker.PoolConfig
}

// SettingsFromEnv reads Settings from environment variables.
func SettingsFromEnv() Settings {
	window, _ := time.ParseDuration(os.Getenv("ALERT_DEDUP_WINDOW"))
	return Settings{
		ThresholdsFile:   os.Getenv("THRESHOLDS_FILE"),
		DedupWindow:      window,
		EmailMinSeverity: alert.Severity(os.Getenv("EMAIL_MIN_SEVERITY")),
		Email:            providers.ConfigFromEnv(),
		Gamification:     gamification.ConfigFromEnv(),
		Pool:             worker.ConfigFromEnv().Pool,
	}
}

// Config holds the infrastructure the core is built on.
type Config struct {
	Settings Settings

	// Pool backs every repository. Nil selects in-memory stores.
	Pool *pgxpool.Pool

	// Redis enables the dedup gate and cross-instance realtime relay.
	Redis *redis.Client

	// Hub receives realtime events for sockets held by this process.
	// The worker has no sockets and leaves it nil.
	Hub *realtime.Hub

	Logger zerolog.Logger
}

// Core is the assembled alerting core.
type Core struct {
	Users      *user.Service
	Metrics    *metric.Service
	Alerts     *alert.Service
	Flags      *featureflags.Service
	Registry   *resilience.Registry
	Email      *email.Service
	Dispatcher *notify.Dispatcher
	Pipeline   *ingest.Pipeline
	Tasks      *worker.Pool
	Relay      *realtime.Relay

	closers []func() error
	logger  zerolog.Logger
}

// New builds the core. Call Close to release background resources.
func New(ctx context.Context, cfg Config) (*Core, error) {
	log := cfg.Logger
	s := cfg.Settings
	c := &Core{logger: log, Registry: resilience.NewRegistry()}

	var (
		userRepo   user.Repository
		metricRepo metric.Repository
		alertRepo  alert.Repository
		flagRepo   featureflags.Repository
		attemptLog email.AttemptLog
	)
	if cfg.Pool != nil {
		userRepo = user.NewPostgresRepository(cfg.Pool)
		metricRepo = metric.NewPostgresRepository(cfg.Pool)
		alertRepo = alert.NewPostgresRepository(cfg.Pool)
		flagRepo = featureflags.NewPostgresRepository(cfg.Pool)

		db := database.OpenSQL(cfg.Pool)
		c.closers = append(c.closers, db.Close)
		attemptLog = email.NewSQLAttemptLog(db)
	} else {
		log.Warn().Msg("no database configured, using in-memory stores")
		userRepo = user.NewInMemoryRepository()
		metricRepo = metric.NewInMemoryRepository()
		alertRepo = alert.NewInMemoryRepository()
		flagRepo = featureflags.NewInMemoryRepository()
		attemptLog = email.NewInMemoryAttemptLog()
	}

	c.Users = user.NewService(userRepo)
	c.Metrics = metric.NewService(metricRepo)
	c.Alerts = alert.NewService(alert.ServiceConfig{Repository: alertRepo, Logger: log})
	c.Flags = featureflags.NewService(featureflags.ServiceConfig{
		Repository: flagRepo,
		Logger:     log,
		CacheTTL:   time.Minute,
	})

	table := threshold.DefaultTable()
	if s.ThresholdsFile != "" {
		loaded, err := threshold.LoadTable(s.ThresholdsFile)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("loading thresholds: %w", err)
		}
		table = loaded
		log.Info().Str("file", s.ThresholdsFile).Int("rules", len(table)).Msg("threshold overrides loaded")
	}
	evaluator := threshold.NewEvaluator(threshold.Config{Table: table, Logger: log})

	cb := resilience.DefaultCircuitBreakerConfig("email")
	c.Email = email.NewService(email.ServiceConfig{
		Providers:      providers.Build(s.Email, log),
		AttemptLog:     attemptLog,
		CircuitBreaker: &cb,
		Registry:       c.Registry,
		Logger:         log,
	})
	if len(c.Email.ProviderNames()) == 0 {
		log.Warn().Msg("no email providers configured, alert emails will fail")
	}

	pusher := c.pusher(ctx, cfg)

	dispatcher, err := notify.NewDispatcher(notify.Config{
		Pusher:           pusher,
		UnreadCounter:    c.Alerts,
		Email:            c.Email,
		Flags:            c.Flags,
		EmailMinSeverity: s.EmailMinSeverity,
		Logger:           log,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	c.Dispatcher = dispatcher

	var gate alert.Gate
	if s.DedupWindow > 0 && cfg.Redis != nil {
		gate = alert.NewRedisGate(alert.RedisGateConfig{Client: cfg.Redis, Window: s.DedupWindow})
		log.Info().Dur("window", s.DedupWindow).Msg("alert dedup enabled")
	}

	awarder, err := c.awarder(ctx, s.Gamification)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	poolCfg := s.Pool
	poolCfg.Logger = log
	c.Tasks = worker.NewPool(poolCfg)

	pipeline, err := ingest.NewPipeline(ingest.Config{
		Metrics:    c.Metrics,
		Evaluator:  evaluator,
		Alerts:     c.Alerts,
		Dispatcher: c.Dispatcher,
		Users:      c.Users,
		Awarder:    awarder,
		DedupGate:  gate,
		Flags:      c.Flags,
		Runner:     c.Tasks,
		// Email retries across every provider must fit.
		DispatchTimeout: c.Email.MaxDuration(email.DefaultMaxRetries) + time.Minute,
		Logger:          log,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("creating ingest pipeline: %w", err)
	}
	c.Pipeline = pipeline

	return c, nil
}

// pusher selects the realtime transport: the Redis relay when Redis is
// available, otherwise the local hub. Without either, pushes are disabled.
func (c *Core) pusher(ctx context.Context, cfg Config) notify.Pusher {
	if cfg.Redis != nil {
		c.Relay = realtime.NewRelay(realtime.RelayConfig{Client: cfg.Redis, Hub: cfg.Hub, Logger: cfg.Logger})
		if cfg.Hub != nil {
			if err := c.Relay.Start(ctx); err != nil {
				cfg.Logger.Warn().Err(err).Msg("realtime relay unavailable, delivering locally")
				return cfg.Hub
			}
			c.closers = append(c.closers, c.Relay.Close)
		}
		return c.Relay
	}
	if cfg.Hub != nil {
		return cfg.Hub
	}
	cfg.Logger.Warn().Msg("no realtime transport, websocket pushes disabled")
	return nil
}

func (c *Core) awarder(ctx context.Context, cfg gamification.PubSubConfig) (gamification.Awarder, error) {
	if cfg.Topic == "" {
		return gamification.NewLogAwarder(c.logger), nil
	}
	publisher, err := gamification.NewPubSubPublisher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gamification publisher: %w", err)
	}
	c.closers = append(c.closers, publisher.Close)
	return gamification.NewPublishingAwarder(gamification.PublishingAwarderConfig{
		Publisher: publisher,
		Logger:    c.logger,
	}), nil
}

// Close drains background work and releases resources in reverse order.
func (c *Core) Close() error {
	if c.Tasks != nil {
		c.Tasks.Close()
	}
	if c.Pipeline != nil {
		c.Pipeline.Wait()
	}

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
