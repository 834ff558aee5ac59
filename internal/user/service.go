package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service errors.
var (
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidAssignment = errors.New("assignment requires a provider and a patient")
)

// Service provides user directory operations.
type Service struct {
	repo Repository
}

// NewService creates a new user service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get retrieves a user by ID.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Register adds a user to the directory.
func (s *Service) Register(ctx context.Context, role Role, email, name string) (*User, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	now := time.Now().UTC()
	u := &User{
		ID:        "usr_" + uuid.New().String()[:22],
		Role:      role,
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// AssignPatient links a patient to a provider after checking both roles.
func (s *Service) AssignPatient(ctx context.Context, providerID, patientID string) error {
	provider, err := s.repo.Get(ctx, providerID)
	if err != nil {
		return fmt.Errorf("loading provider: %w", err)
	}
	patient, err := s.repo.Get(ctx, patientID)
	if err != nil {
		return fmt.Errorf("loading patient: %w", err)
	}
	if provider.Role != RoleProvider || patient.Role != RolePatient {
		return ErrInvalidAssignment
	}
	return s.repo.AssignPatient(ctx, providerID, patientID)
}

// ResolveScope computes the set of users an authenticated caller may see.
func (s *Service) ResolveScope(ctx context.Context, callerID string, role Role) (Scope, error) {
	scope := Scope{CallerID: callerID, Role: role}

	switch role {
	case RoleAdmin:
		return scope, nil
	case RolePatient:
		scope.UserIDs = []string{callerID}
		return scope, nil
	case RoleProvider:
		patients, err := s.repo.ListPatientIDs(ctx, callerID)
		if err != nil {
			return Scope{}, fmt.Errorf("listing assigned patients: %w", err)
		}
		scope.UserIDs = append([]string{callerID}, patients...)
		return scope, nil
	default:
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
}
