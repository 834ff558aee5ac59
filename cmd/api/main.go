// Package main provides the entrypoint for the Telecare API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/api"
	"github.com/telecare/telecare/internal/api/handler"
	"github.com/telecare/telecare/internal/api/middleware"
	"github.com/telecare/telecare/internal/app"
	"github.com/telecare/telecare/internal/auth"
	"github.com/telecare/telecare/internal/database"
	"github.com/telecare/telecare/internal/realtime"
	"github.com/telecare/telecare/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "telecare-api"

	// Local development reads a .env file; absence is fine.
	_ = godotenv.Load()

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Telecare API")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryCfg := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryCfg.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	if os.Getenv("DB_MIGRATE") == "true" {
		db := database.OpenSQL(pool)
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		_ = db.Close()
		log.Info().Msg("database schema up to date")
	}

	// Redis is optional; it enables alert dedup and multi-instance realtime.
	var redisClient *redis.Client
	if redisCfg := database.RedisConfigFromEnv(); redisCfg.Enabled() {
		redisClient, err = database.ConnectRedis(ctx, redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Str("addr", redisCfg.Addr).Msg("redis connected")
	}

	jwtService, err := auth.NewJWTService(auth.ConfigFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token validation")
	}

	var origins []string
	if v := os.Getenv("WS_ALLOWED_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}
	hub := realtime.NewHub(realtime.HubConfig{AllowedOrigins: origins, Logger: log})

	core, err := app.New(ctx, app.Config{
		Settings: app.SettingsFromEnv(),
		Pool:     pool,
		Redis:    redisClient,
		Hub:      hub,
		Logger:   log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize alerting core")
	}
	log.Info().
		Strs("email_providers", core.Email.ProviderNames()).
		Msg("alerting core initialized")

	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		Logger:          log,
		ServiceName:     serviceName,
		Metrics:         metrics,
		RequireTLS:      os.Getenv("REQUIRE_TLS") == "true",
		Tokens:          jwtService,
		Scopes:          core.Users,
		Ingester:        core.Pipeline,
		Readings:        core.Metrics,
		Alerts:          core.Alerts,
		UnreadRefresher: core.Dispatcher,
		Sockets:         hub,
		Realtime:        hub,
		FeatureFlags:    core.Flags,
		Subsystems:      subsystems(pool, redisClient),
		Providers:       core.Registry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Websockets are hijacked and outlive Shutdown.
	hub.Close()

	// In-flight notifications finish before the pool and Redis go away.
	if err := core.Close(); err != nil {
		log.Error().Err(err).Msg("failed to release alerting core")
	}

	log.Info().Msg("server stopped")
}

func subsystems(pool *pgxpool.Pool, rdb *redis.Client) []handler.Subsystem {
	out := []handler.Subsystem{
		{Name: "postgres", Check: pool.Ping},
	}
	if rdb != nil {
		out = append(out, handler.Subsystem{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return out
}
