package metric

import (
	"context"
	"sort"
	"sync"
)

// Repository defines the interface for reading persistence.
type Repository interface {
	// Create stores a new reading.
	Create(ctx context.Context, reading *Reading) error

	// Get retrieves a reading by ID.
	Get(ctx context.Context, id string) (*Reading, error)

	// List returns readings matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Reading, error)

	// Delete removes a reading by ID.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	readings map[string]*Reading
}

// NewInMemoryRepository creates a new in-memory reading repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		readings: make(map[string]*Reading),
	}
}

// Create stores a new reading.
func (r *InMemoryRepository) Create(_ context.Context, reading *Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.readings[reading.ID] = copyReading(reading)
	return nil
}

// Get retrieves a reading by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reading, ok := r.readings[id]
	if !ok {
		return nil, ErrMetricNotFound
	}
	return copyReading(reading), nil
}

// List returns readings matching the filter, newest first.
func (r *InMemoryRepository) List(_ context.Context, filter Filter) ([]*Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allowed map[string]bool
	if filter.UserIDs != nil {
		allowed = make(map[string]bool, len(filter.UserIDs))
		for _, id := range filter.UserIDs {
			allowed[id] = true
		}
	}

	result := make([]*Reading, 0)
	for _, reading := range r.readings {
		if allowed != nil && !allowed[reading.UserID] {
			continue
		}
		if filter.UserID != "" && reading.UserID != filter.UserID {
			continue
		}
		if filter.MetricType != "" && reading.MetricType != filter.MetricType {
			continue
		}
		result = append(result, copyReading(reading))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Delete removes a reading by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.readings[id]; !ok {
		return ErrMetricNotFound
	}
	delete(r.readings, id)
	return nil
}

func copyReading(r *Reading) *Reading {
	c := *r
	if r.Value.Number != nil {
		n := *r.Value.Number
		c.Value.Number = &n
	}
	if r.Value.BloodPressure != nil {
		bp := *r.Value.BloodPressure
		c.Value.BloodPressure = &bp
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

var _ Repository = (*InMemoryRepository)(nil)
