package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/api/models"
	"github.com/telecare/telecare/internal/api/response"
	"github.com/telecare/telecare/internal/ingest"
	"github.com/telecare/telecare/internal/metric"
	"github.com/telecare/telecare/internal/user"
)

// Ingester runs a reading through the alerting pipeline.
type Ingester interface {
	Ingest(ctx context.Context, reading *metric.Reading) (*ingest.Result, error)
}

// MetricReader reads and deletes stored readings within a scope.
type MetricReader interface {
	Get(ctx context.Context, scope user.Scope, id string) (*metric.Reading, error)
	List(ctx context.Context, scope user.Scope, filter metric.Filter) ([]*metric.Reading, error)
	Delete(ctx context.Context, scope user.Scope, id string) error
}

// MetricHandler handles health reading endpoints.
type MetricHandler struct {
	ingester Ingester
	metrics  MetricReader
	scopes   ScopeResolver
	logger   zerolog.Logger
}

// NewMetricHandler creates a new MetricHandler.
func NewMetricHandler(ingester Ingester, metrics MetricReader, scopes ScopeResolver, logger zerolog.Logger) *MetricHandler {
	return &MetricHandler{
		ingester: ingester,
		metrics:  metrics,
		scopes:   scopes,
		logger:   logger,
	}
}

// CreateMetric handles POST /v1/metrics - record a reading and evaluate it.
// Patients record for themselves; providers and admins may name a patient.
func (h *MetricHandler) CreateMetric(w http.ResponseWriter, r *http.Request) {
	var input models.MetricInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	owner := input.UserID
	if owner == "" {
		owner = scope.CallerID
	}
	if !scope.Allows(owner) {
		response.Forbidden(w, r, "cannot record readings for this user")
		return
	}

	result, err := h.ingester.Ingest(r.Context(), input.Reading(owner))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	location := fmt.Sprintf("/v1/metrics/%s", result.Metric.ID)
	response.Created(w, r, location, result)
}

// ListMetrics handles GET /v1/metrics - list readings in scope, newest first.
func (h *MetricHandler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	var fieldErrs []models.FieldError

	limit, fe := queryLimit(r)
	if fe != nil {
		fieldErrs = append(fieldErrs, *fe)
	}

	var metricType metric.Type
	if raw := r.URL.Query().Get("metricType"); raw != "" {
		t, ok := metric.ParseType(raw)
		if !ok {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "metricType", Message: "unknown metric type " + raw, Code: "INVALID_ENUM"})
		}
		metricType = t
	}

	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	readings, err := h.metrics.List(r.Context(), scope, metric.Filter{
		UserID:     r.URL.Query().Get("userId"),
		MetricType: metricType,
		Limit:      limit,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if readings == nil {
		readings = []*metric.Reading{}
	}
	response.JSON(w, r, http.StatusOK, models.PagedMetrics{
		Items: readings,
		Meta:  models.PagedResponseMeta{Limit: effectiveLimit(limit, metric.DefaultListLimit, metric.MaxListLimit), Count: len(readings)},
	})
}

// GetMetric handles GET /v1/metrics/{metricId}.
func (h *MetricHandler) GetMetric(w http.ResponseWriter, r *http.Request) {
	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	reading, err := h.metrics.Get(r.Context(), scope, chi.URLParam(r, "metricId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, reading)
}

// DeleteMetric handles DELETE /v1/metrics/{metricId}. Alerts raised from
// the reading are kept.
func (h *MetricHandler) DeleteMetric(w http.ResponseWriter, r *http.Request) {
	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	if err := h.metrics.Delete(r.Context(), scope, chi.URLParam(r, "metricId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.NoContent(w, r)
}

func effectiveLimit(limit, fallback, ceiling int) int {
	switch {
	case limit <= 0:
		return fallback
	case limit > ceiling:
		return ceiling
	}
	return limit
}
