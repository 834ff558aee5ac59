package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/user"
)

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ErrInvalidAlert is returned when an alert is missing required fields.
var ErrInvalidAlert = errors.New("invalid alert")

// ServiceConfig holds configuration for the alert service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
}

// Service provides scoped alert operations.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new alert service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new alert, assigning its ID and timestamps.
// Each call creates a distinct alert.
func (s *Service) Create(ctx context.Context, a *Alert) (*Alert, error) {
	if a.UserID == "" || !a.Severity.IsValid() {
		return nil, fmt.Errorf("%w: user id and severity are required", ErrInvalidAlert)
	}

	c := a.Clone()
	now := s.now()
	c.ID = "alt_" + uuid.New().String()[:22]
	if c.Type == "" {
		c.Type = TypeHealthMetric
	}
	c.IsRead = false
	c.IsAcknowledged = false
	c.AcknowledgedBy = ""
	c.AcknowledgedAt = nil
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("storing alert: %w", err)
	}

	s.logger.Debug().
		Str("alert_id", c.ID).
		Str("user_id", c.UserID).
		Str("severity", string(c.Severity)).
		Msg("alert created")

	return c, nil
}

// List returns alerts visible to the scope, newest first.
func (s *Service) List(ctx context.Context, scope user.Scope, filter Filter, limit int) ([]*Alert, error) {
	if filter.UserID != "" && !scope.Allows(filter.UserID) {
		return nil, ErrForbidden
	}
	filter.UserIDs = scope.Restriction()
	return s.repo.List(ctx, filter, clampLimit(limit))
}

// UnreadCount returns the unread count for userID, defaulting to the caller.
func (s *Service) UnreadCount(ctx context.Context, scope user.Scope, userID string) (int, error) {
	if userID == "" {
		userID = scope.CallerID
	}
	if !scope.Allows(userID) {
		return 0, ErrForbidden
	}
	return s.repo.CountUnread(ctx, userID)
}

// CountUnread returns the unread count for a user without scope checks.
// Used by internal collaborators such as the notification dispatcher.
func (s *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead marks an alert as read. Marking an already-read alert is a no-op.
func (s *Service) MarkRead(ctx context.Context, scope user.Scope, id string) (*Alert, error) {
	if _, err := s.authorize(ctx, id, scope.Allows); err != nil {
		return nil, err
	}
	return s.repo.MarkRead(ctx, id, s.now())
}

// Acknowledge records that byUserID has seen and handled the alert.
// The first acknowledger and time are kept on repeated calls.
func (s *Service) Acknowledge(ctx context.Context, scope user.Scope, id, byUserID string) (*Alert, error) {
	if _, err := s.authorize(ctx, id, scope.Allows); err != nil {
		return nil, err
	}
	if byUserID == "" {
		byUserID = scope.CallerID
	}
	return s.repo.Acknowledge(ctx, id, byUserID, s.now())
}

// Delete removes an alert and returns it. Only the owner or an admin may delete.
func (s *Service) Delete(ctx context.Context, scope user.Scope, id string) (*Alert, error) {
	a, err := s.authorize(ctx, id, scope.Owns)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) authorize(ctx context.Context, id string, allowed func(string) bool) (*Alert, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowed(a.UserID) {
		return nil, ErrForbidden
	}
	return a, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
