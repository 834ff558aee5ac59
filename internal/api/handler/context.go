// Package handler provides HTTP handlers for the Telecare API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/api/middleware"
	"github.com/telecare/telecare/internal/api/models"
	"github.com/telecare/telecare/internal/api/response"
	"github.com/telecare/telecare/internal/featureflags"
	"github.com/telecare/telecare/internal/metric"
	"github.com/telecare/telecare/internal/user"
)

// ScopeResolver computes which users an authenticated caller may see.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, callerID string, role user.Role) (user.Scope, error)
}

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// callerScope resolves the scope of the authenticated caller, writing the
// error response itself when it cannot.
func callerScope(w http.ResponseWriter, r *http.Request, scopes ScopeResolver, log zerolog.Logger) (user.Scope, bool) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		response.Unauthorized(w, r, "authentication required")
		return user.Scope{}, false
	}
	scope, err := scopes.ResolveScope(r.Context(), principal.UserID, principal.Role)
	if err != nil {
		writeError(w, r, log, err)
		return user.Scope{}, false
	}
	return scope, true
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	var verr *metric.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, r, "invalid metric reading", fieldErrors(verr))
	case errors.Is(err, user.ErrForbidden), errors.Is(err, user.ErrInvalidRole):
		response.Forbidden(w, r, "resource is outside your access scope")
	case errors.Is(err, alert.ErrAlertNotFound):
		response.NotFound(w, r, "alert not found")
	case errors.Is(err, metric.ErrMetricNotFound):
		response.NotFound(w, r, "metric reading not found")
	case errors.Is(err, user.ErrUserNotFound):
		response.NotFound(w, r, "user not found")
	case errors.Is(err, featureflags.ErrUnknownFlag):
		response.BadRequest(w, r, err.Error(), nil)
	default:
		log.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func fieldErrors(verr *metric.ValidationError) []models.FieldError {
	out := make([]models.FieldError, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		out = append(out, models.FieldError{Field: fe.Field, Message: fe.Message, Code: fe.Code})
	}
	return out
}

// queryLimit parses the optional limit query parameter.
func queryLimit(r *http.Request) (int, *models.FieldError) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &models.FieldError{Field: "limit", Message: "limit must be a positive integer", Code: "INVALID_NUMBER"}
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (*bool, *models.FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, &models.FieldError{Field: name, Message: name + " must be true or false", Code: "INVALID_BOOLEAN"}
	}
	return &b, nil
}
