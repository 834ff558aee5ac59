package alert

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for alert persistence.
type Repository interface {
	// Create stores a new alert.
	Create(ctx context.Context, alert *Alert) error

	// Get retrieves an alert by ID.
	Get(ctx context.Context, id string) (*Alert, error)

	// List returns alerts matching the filter, newest first, up to limit.
	List(ctx context.Context, filter Filter, limit int) ([]*Alert, error)

	// CountUnread counts unread alerts for a user.
	CountUnread(ctx context.Context, userID string) (int, error)

	// MarkRead sets isRead. Already-read alerts are returned unchanged.
	MarkRead(ctx context.Context, id string, at time.Time) (*Alert, error)

	// Acknowledge records the first acknowledgement. Later calls are no-ops.
	Acknowledge(ctx context.Context, id, byUserID string, at time.Time) (*Alert, error)

	// Delete removes an alert by ID.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

// NewInMemoryRepository creates a new in-memory alert repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		alerts: make(map[string]*Alert),
	}
}

// Create stores a new alert.
func (r *InMemoryRepository) Create(_ context.Context, alert *Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alerts[alert.ID] = alert.Clone()
	return nil
}

// Get retrieves an alert by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return a.Clone(), nil
}

// List returns alerts matching the filter, newest first, up to limit.
func (r *InMemoryRepository) List(_ context.Context, filter Filter, limit int) ([]*Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Alert, 0)
	for _, a := range r.alerts {
		if filter.Matches(a) {
			result = append(result, a.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountUnread counts unread alerts for a user.
func (r *InMemoryRepository) CountUnread(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, a := range r.alerts {
		if a.UserID == userID && !a.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkRead sets isRead.
func (r *InMemoryRepository) MarkRead(_ context.Context, id string, at time.Time) (*Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	if !a.IsRead {
		a.IsRead = true
		a.UpdatedAt = at
	}
	return a.Clone(), nil
}

// Acknowledge records the first acknowledgement.
func (r *InMemoryRepository) Acknowledge(_ context.Context, id, byUserID string, at time.Time) (*Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	if !a.IsAcknowledged {
		a.IsAcknowledged = true
		a.AcknowledgedBy = byUserID
		ackAt := at
		a.AcknowledgedAt = &ackAt
		a.UpdatedAt = at
	}
	return a.Clone(), nil
}

// Delete removes an alert by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.alerts[id]; !ok {
		return ErrAlertNotFound
	}
	delete(r.alerts, id)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
