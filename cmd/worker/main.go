// Package main provides the entrypoint for the Telecare background worker.
// It ingests device readings from Pub/Sub and MQTT and runs them through
// the same alerting pipeline as the API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/app"
	"github.com/telecare/telecare/internal/database"
	"github.com/telecare/telecare/internal/telemetry"
	"github.com/telecare/telecare/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "telecare-worker"

	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Telecare worker")

	// Worker also exposes health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	pool, err := database.Connect(ctx, database.ConfigFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	// Without Redis, alerts raised here cannot reach API websockets.
	var redisClient *redis.Client
	if redisCfg := database.RedisConfigFromEnv(); redisCfg.Enabled() {
		redisClient, err = database.ConnectRedis(ctx, redisCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	cfg := worker.ConfigFromEnv()
	settings := app.SettingsFromEnv()
	settings.Pool = cfg.Pool

	core, err := app.New(ctx, app.Config{
		Settings: settings,
		Pool:     pool,
		Redis:    redisClient,
		Logger:   log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize alerting core")
	}

	jobs := worker.NewJobs(core.Pipeline, pool, log)

	var (
		consumers sync.WaitGroup
		mqttSub   *worker.MQTTSubscriber
	)

	if cfg.PubSubEnabled() {
		handler, err := worker.NewPubSubHandler(ctx, cfg.PubSub, jobs, cfg.JobTimeout, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Warn().Msg("pubsub subscription not configured")
	}

	if cfg.MQTTEnabled() {
		mqttSub, err = worker.NewMQTTSubscriber(cfg.MQTT, jobs, cfg.JobTimeout, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		if err := mqttSub.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to mqtt readings")
		}
		log.Info().Str("topic", mqttSub.Topic()).Msg("mqtt subscriber started")
	} else {
		log.Warn().Msg("mqtt broker not configured")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "OK",
			"version": Version,
			"pool":    core.Tasks.MetricsSnapshot(),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, checkCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer checkCancel()
		if err := pool.Ping(checkCtx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "FAIL", "postgres": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()
	consumers.Wait()
	if mqttSub != nil {
		mqttSub.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	if err := core.Close(); err != nil {
		log.Error().Err(err).Msg("failed to release alerting core")
	}

	log.Info().Msg("worker stopped")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
