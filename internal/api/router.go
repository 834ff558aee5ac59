// Package api provides the HTTP API for Telecare.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/api/handler"
	"github.com/telecare/telecare/internal/api/middleware"
	"github.com/telecare/telecare/internal/user"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Tokens   middleware.TokenValidator
	Scopes   handler.ScopeResolver
	Ingester handler.Ingester
	Readings handler.MetricReader
	Alerts   handler.AlertService

	// Optional.
	UnreadRefresher handler.UnreadRefresher
	Sockets         handler.SocketServer
	Realtime        handler.RealtimeStats
	FeatureFlags    handler.FlagStore
	Subsystems      []handler.Subsystem
	Providers       handler.ProviderHealthSource
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "telecare-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON) // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Subsystems: cfg.Subsystems,
		Providers:  cfg.Providers,
		Realtime:   cfg.Realtime,
		Flags:      cfg.FeatureFlags,
	})
	metricHandler := handler.NewMetricHandler(cfg.Ingester, cfg.Readings, cfg.Scopes, cfg.Logger)
	alertHandler := handler.NewAlertHandler(cfg.Alerts, cfg.Scopes, cfg.UnreadRefresher, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.Tokens)

	// Per-user limits; each category has its own budget.
	ingestRateLimit := middleware.RateLimitByUser(middleware.IngestRateLimit)     // 120 req/min
	exportRateLimit := middleware.RateLimitByUser(middleware.ExportRateLimit)     // 10 req/min
	standardRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit) // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Health readings
		r.Route("/metrics", func(r chi.Router) {
			r.Use(authMiddleware)
			r.With(ingestRateLimit, middleware.RequireJSON).Post("/", metricHandler.CreateMetric)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", metricHandler.ListMetrics)
				r.Get("/{metricId}", metricHandler.GetMetric)
				r.Delete("/{metricId}", metricHandler.DeleteMetric)
			})
		})

		// Alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Use(authMiddleware)
			r.With(exportRateLimit).Get("/export", alertHandler.ExportAlerts)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", alertHandler.ListAlerts)
				r.Get("/unread-count", alertHandler.UnreadCount)
				r.Route("/{alertId}", func(r chi.Router) {
					r.Post("/read", alertHandler.MarkRead)
					r.Post("/acknowledge", alertHandler.Acknowledge)
					r.Delete("/", alertHandler.DeleteAlert)
				})
			})
		})

		// Real-time alert events
		if cfg.Sockets != nil {
			realtimeHandler := handler.NewRealtimeHandler(cfg.Sockets)
			r.With(authMiddleware).Get("/realtime", realtimeHandler.Connect)
		}

		// Admin endpoints (authenticated) - for internal operations
		if cfg.FeatureFlags != nil {
			featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlags, cfg.Logger)
			r.Route("/admin", func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RequireRole(user.RoleAdmin))
				r.Use(standardRateLimit)

				// Feature flags management
				r.Route("/feature-flags", func(r chi.Router) {
					r.Get("/", featureFlagsHandler.ListFeatureFlags)
					r.With(middleware.RequireJSON).Put("/", featureFlagsHandler.UpsertFeatureFlags)
					r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
					r.Delete("/{key}", featureFlagsHandler.ResetFeatureFlag)
				})
			})
		}
	})

	return r
}
