package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/api/models"
	"github.com/telecare/telecare/internal/api/response"
	"github.com/telecare/telecare/internal/featureflags"
)

// FlagStore reads and updates feature flags.
type FlagStore interface {
	FlagChecker
	GetAllFlags(ctx context.Context) []*featureflags.Flag
	SetFlags(ctx context.Context, flags []*featureflags.Flag) error
	ResetFlag(ctx context.Context, key string) error
	InvalidateCache()
}

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service FlagStore
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service FlagStore, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.FeatureFlags{
		Flags: h.service.GetAllFlags(r.Context()),
	})
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags - update feature flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var input models.FeatureFlagsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if len(input.Flags) == 0 {
		response.BadRequest(w, r, "at least one flag is required", []models.FieldError{
			{Field: "flags", Message: "must not be empty", Code: "REQUIRED"},
		})
		return
	}

	flags := make([]*featureflags.Flag, 0, len(input.Flags))
	for _, in := range input.Flags {
		flags = append(flags, &featureflags.Flag{Key: in.Key, Value: in.Value})
	}

	if err := h.service.SetFlags(r.Context(), flags); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.FeatureFlags{
		Flags: h.service.GetAllFlags(r.Context()),
	})
}

// ResetFeatureFlag handles DELETE /v1/admin/feature-flags/{key} - revert a flag to its default.
func (h *FeatureFlagsHandler) ResetFeatureFlag(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetFlag(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate - invalidate flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	h.logger.Info().Str("by", GetUserID(r.Context())).Msg("feature flag cache invalidated")
	response.NoContent(w, r)
}
