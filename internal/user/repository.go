package user

import (
	"context"
	"sort"
	"sync"
)

// Repository defines the interface for user directory persistence.
type Repository interface {
	// Get retrieves a user by ID.
	Get(ctx context.Context, id string) (*User, error)

	// Create creates a new user.
	Create(ctx context.Context, user *User) error

	// AssignPatient links a patient to a provider. Repeated calls are no-ops.
	AssignPatient(ctx context.Context, providerID, patientID string) error

	// ListPatientIDs returns the IDs of patients assigned to a provider.
	ListPatientIDs(ctx context.Context, providerID string) ([]string, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local development.
type InMemoryRepository struct {
	mu          sync.RWMutex
	users       map[string]*User
	assignments map[string]map[string]struct{}
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:       make(map[string]*User),
		assignments: make(map[string]map[string]struct{}),
	}
}

// Get retrieves a user by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// Create creates a new user.
func (r *InMemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *u
	r.users[u.ID] = &c
	return nil
}

// AssignPatient links a patient to a provider.
func (r *InMemoryRepository) AssignPatient(_ context.Context, providerID, patientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	patients, ok := r.assignments[providerID]
	if !ok {
		patients = make(map[string]struct{})
		r.assignments[providerID] = patients
	}
	patients[patientID] = struct{}{}
	return nil
}

// ListPatientIDs returns the IDs of patients assigned to a provider.
func (r *InMemoryRepository) ListPatientIDs(_ context.Context, providerID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.assignments[providerID]))
	for id := range r.assignments[providerID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ Repository = (*InMemoryRepository)(nil)
