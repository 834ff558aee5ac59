package metric

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/user"
)

// ErrForbidden is returned when a reading lies outside the caller's scope.
var ErrForbidden = user.ErrForbidden

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Service provides reading operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new metric service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Record validates and persists a new reading. The returned reading carries
// the assigned ID and defaults.
func (s *Service) Record(ctx context.Context, reading *Reading) (*Reading, error) {
	if reading == nil {
		return nil, MissingReadingError()
	}
	r := copyReading(reading)
	if err := r.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	r.ID = "met_" + uuid.New().String()[:22]
	r.CreatedAt = now
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("storing reading: %w", err)
	}
	return r, nil
}

// Get retrieves a reading visible to the scope.
func (s *Service) Get(ctx context.Context, scope user.Scope, id string) (*Reading, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.Allows(r.UserID) {
		return nil, ErrForbidden
	}
	return r, nil
}

// List returns readings visible to the scope, newest first.
func (s *Service) List(ctx context.Context, scope user.Scope, filter Filter) ([]*Reading, error) {
	if filter.UserID != "" && !scope.Allows(filter.UserID) {
		return nil, ErrForbidden
	}
	filter.UserIDs = scope.Restriction()
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.List(ctx, filter)
}

// Delete removes a reading. Only the owner or an admin may delete.
func (s *Service) Delete(ctx context.Context, scope user.Scope, id string) error {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !scope.Owns(r.UserID) {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
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
