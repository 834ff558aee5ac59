package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL user repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a user by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, role, email, name, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var (
		u    User
		role string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&role,
		&u.Email,
		&u.Name,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

// Create creates a new user.
func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, role, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		u.ID,
		string(u.Role),
		u.Email,
		u.Name,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// AssignPatient links a patient to a provider.
func (r *PostgresRepository) AssignPatient(ctx context.Context, providerID, patientID string) error {
	query := `
		INSERT INTO provider_patients (provider_id, patient_id)
		VALUES ($1, $2)
		ON CONFLICT (provider_id, patient_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, providerID, patientID); err != nil {
		return fmt.Errorf("assigning patient: %w", err)
	}
	return nil
}

// ListPatientIDs returns the IDs of patients assigned to a provider.
func (r *PostgresRepository) ListPatientIDs(ctx context.Context, providerID string) ([]string, error) {
	query := `
		SELECT patient_id
		FROM provider_patients
		WHERE provider_id = $1
		ORDER BY patient_id
	`

	rows, err := r.pool.Query(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
