package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/api/models"
	"github.com/telecare/telecare/internal/api/response"
	"github.com/telecare/telecare/internal/user"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AlertService is the scoped alert store.
type AlertService interface {
	List(ctx context.Context, scope user.Scope, filter alert.Filter, limit int) ([]*alert.Alert, error)
	UnreadCount(ctx context.Context, scope user.Scope, userID string) (int, error)
	MarkRead(ctx context.Context, scope user.Scope, id string) (*alert.Alert, error)
	Acknowledge(ctx context.Context, scope user.Scope, id, byUserID string) (*alert.Alert, error)
	Delete(ctx context.Context, scope user.Scope, id string) (*alert.Alert, error)
	Export(ctx context.Context, scope user.Scope, filter alert.Filter) ([]byte, error)
}

// UnreadRefresher pushes a fresh unread badge to a user's open sessions.
type UnreadRefresher interface {
	RefreshUnreadCount(ctx context.Context, userID string)
}

// AlertHandler handles alert endpoints.
type AlertHandler struct {
	alerts  AlertService
	scopes  ScopeResolver
	refresh UnreadRefresher
	logger  zerolog.Logger
	now     func() time.Time
}

// NewAlertHandler creates a new AlertHandler. refresh may be nil.
func NewAlertHandler(alerts AlertService, scopes ScopeResolver, refresh UnreadRefresher, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{
		alerts:  alerts,
		scopes:  scopes,
		refresh: refresh,
		logger:  logger,
		now:     time.Now,
	}
}

// ListAlerts handles GET /v1/alerts - list alerts in scope, newest first.
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, fieldErrs := parseAlertFilter(r)
	limit, fe := queryLimit(r)
	if fe != nil {
		fieldErrs = append(fieldErrs, *fe)
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	alerts, err := h.alerts.List(r.Context(), scope, filter, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if alerts == nil {
		alerts = []*alert.Alert{}
	}
	response.JSON(w, r, http.StatusOK, models.PagedAlerts{
		Items: alerts,
		Meta:  models.PagedResponseMeta{Limit: effectiveLimit(limit, alert.DefaultListLimit, alert.MaxListLimit), Count: len(alerts)},
	})
}

// UnreadCount handles GET /v1/alerts/unread-count - the unread badge for
// the caller or, for providers and admins, a named user.
func (h *AlertHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = scope.CallerID
	}

	count, err := h.alerts.UnreadCount(r.Context(), scope, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.UnreadCount{UserID: userID, Count: count})
}

// ExportAlerts handles GET /v1/alerts/export - alert history as XLSX.
func (h *AlertHandler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	filter, fieldErrs := parseAlertFilter(r)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	data, err := h.alerts.Export(r.Context(), scope, filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	filename := fmt.Sprintf("alerts-%s.xlsx", h.now().UTC().Format("20060102-150405"))
	response.Attachment(w, r, xlsxContentType, filename, data)
}

// MarkRead handles POST /v1/alerts/{alertId}/read. Repeating it is a no-op.
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	a, err := h.alerts.MarkRead(r.Context(), scope, chi.URLParam(r, "alertId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.refreshUnread(r.Context(), a.UserID)
	response.JSON(w, r, http.StatusOK, a)
}

// Acknowledge handles POST /v1/alerts/{alertId}/acknowledge. The first
// acknowledger and time are kept.
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	a, err := h.alerts.Acknowledge(r.Context(), scope, chi.URLParam(r, "alertId"), scope.CallerID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, a)
}

// DeleteAlert handles DELETE /v1/alerts/{alertId} (owner or admin).
func (h *AlertHandler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	scope, ok := callerScope(w, r, h.scopes, h.logger)
	if !ok {
		return
	}

	a, err := h.alerts.Delete(r.Context(), scope, chi.URLParam(r, "alertId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if !a.IsRead {
		h.refreshUnread(r.Context(), a.UserID)
	}
	response.NoContent(w, r)
}

func (h *AlertHandler) refreshUnread(ctx context.Context, userID string) {
	if h.refresh != nil {
		h.refresh.RefreshUnreadCount(ctx, userID)
	}
}

func parseAlertFilter(r *http.Request) (alert.Filter, []models.FieldError) {
	q := r.URL.Query()
	filter := alert.Filter{UserID: q.Get("userId")}
	var errs []models.FieldError

	if raw := q.Get("severity"); raw != "" {
		sev := alert.Severity(raw)
		if sev.IsValid() {
			filter.Severity = &sev
		} else {
			errs = append(errs, models.FieldError{Field: "severity", Message: "severity must be low, medium, high or critical", Code: "INVALID_ENUM"})
		}
	}

	if raw := q.Get("type"); raw != "" {
		t := alert.Type(raw)
		if t.IsValid() {
			filter.Type = t
		} else {
			errs = append(errs, models.FieldError{Field: "type", Message: "unknown alert type " + raw, Code: "INVALID_ENUM"})
		}
	}

	isRead, fe := queryBool(r, "isRead")
	if fe != nil {
		errs = append(errs, *fe)
	}
	filter.IsRead = isRead

	isAck, fe := queryBool(r, "isAcknowledged")
	if fe != nil {
		errs = append(errs, *fe)
	}
	filter.IsAcknowledged = isAck

	return filter, errs
}
