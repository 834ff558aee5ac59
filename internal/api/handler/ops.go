package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/telecare/telecare/internal/api/models"
	"github.com/telecare/telecare/internal/api/response"
	"github.com/telecare/telecare/internal/featureflags"
	"github.com/telecare/telecare/internal/provider/resilience"
	"github.com/telecare/telecare/internal/realtime"
)

const readinessTimeout = 2 * time.Second

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Subsystem is a named dependency probed by readiness and status.
type Subsystem struct {
	Name  string
	Check CheckFunc
}

// ProviderHealthSource reports email provider circuit health.
type ProviderHealthSource interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// RealtimeStats reports local websocket connection counts.
type RealtimeStats interface {
	Stats() realtime.Stats
}

// FlagChecker reports whether a feature flag is on.
type FlagChecker interface {
	IsEnabled(ctx context.Context, key string) bool
}

// OpsHandlerConfig holds configuration for the ops handler.
type OpsHandlerConfig struct {
	Version    string
	BuildTime  string
	Subsystems []Subsystem
	Providers  ProviderHealthSource
	Realtime   RealtimeStats
	Flags      FlagChecker
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version    string
	buildTime  string
	subsystems []Subsystem
	providers  ProviderHealthSource
	realtime   RealtimeStats
	flags      FlagChecker
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:    cfg.Version,
		buildTime:  cfg.BuildTime,
		subsystems: cfg.Subsystems,
		providers:  cfg.Providers,
		realtime:   cfg.Realtime,
		flags:      cfg.Flags,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - 503 while any dependency is down.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	statuses := h.checkSubsystems(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	status := http.StatusOK
	if len(statuses) > 0 {
		details := make(map[string]interface{}, len(statuses))
		for _, s := range statuses {
			details[s.Name] = s.Status
			if s.Status == models.HealthStatusFail {
				health.Status = models.HealthStatusFail
				status = http.StatusServiceUnavailable
			}
		}
		health.Details = details
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and email provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	out := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.checkSubsystems(r.Context()),
		Providers:  h.providerStatuses(),
	}
	out.ActiveDegradationFlags = h.activeFlags(r.Context())
	if h.realtime != nil {
		st := h.realtime.Stats()
		out.Realtime = &models.RealtimeStatus{ConnectedUsers: st.Users, Connections: st.Connections}
	}

	for _, s := range out.Subsystems {
		out.Status = worst(out.Status, s.Status)
	}
	for _, p := range out.Providers {
		if p.Status != models.HealthStatusOK {
			out.Status = worst(out.Status, models.HealthStatusDegraded)
		}
	}
	if len(out.ActiveDegradationFlags) > 0 {
		out.Status = worst(out.Status, models.HealthStatusDegraded)
	}

	response.JSON(w, r, http.StatusOK, out)
}

func (h *OpsHandler) checkSubsystems(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.subsystems))
	for _, s := range h.subsystems {
		st := models.SubsystemStatus{Name: s.Name, Status: models.HealthStatusOK}
		checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		if err := s.Check(checkCtx); err != nil {
			detail := err.Error()
			st.Status = models.HealthStatusFail
			st.Detail = &detail
		}
		cancel()
		out = append(out, st)
	}
	return out
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.providers == nil {
		return []models.ProviderStatus{}
	}
	all := h.providers.GetAllHealth()
	out := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		ps := models.ProviderStatus{
			Provider:            ph.Name,
			Status:              models.HealthStatusOK,
			CircuitState:        ph.CircuitState.String(),
			ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
			LastSuccessAt:       models.TimestampPtr(ph.LastSuccessAt),
			LastFailureAt:       models.TimestampPtr(ph.LastFailureAt),
		}
		switch {
		case ph.IsUnhealthy():
			ps.Status = models.HealthStatusFail
		case ph.IsDegraded():
			ps.Status = models.HealthStatusDegraded
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}

func (h *OpsHandler) activeFlags(ctx context.Context) []string {
	if h.flags == nil {
		return nil
	}
	var active []string
	for _, key := range featureflags.KnownKeys() {
		if strings.HasPrefix(key, "disable_") && h.flags.IsEnabled(ctx, key) {
			active = append(active, key)
		}
	}
	return active
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := func(s models.HealthStatus) int {
		switch s {
		case models.HealthStatusFail:
			return 2
		case models.HealthStatusDegraded:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
