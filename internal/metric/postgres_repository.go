package metric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL reading repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const readingColumns = `id, user_id, metric_type, value, unit, source, recorded_at, notes, metadata, created_at`

// Create stores a new reading.
func (r *PostgresRepository) Create(ctx context.Context, reading *Reading) error {
	query := `
		INSERT INTO metric_readings (` + readingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	valueJSON, err := json.Marshal(reading.Value)
	if err != nil {
		return fmt.Errorf("encoding value: %w", err)
	}
	var metadataJSON []byte
	if reading.Metadata != nil {
		metadataJSON, err = json.Marshal(reading.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, query,
		reading.ID,
		reading.UserID,
		string(reading.MetricType),
		valueJSON,
		reading.Unit,
		string(reading.Source),
		reading.Timestamp,
		nullableString(reading.Notes),
		metadataJSON,
		reading.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// Get retrieves a reading by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM metric_readings WHERE id = $1`

	reading, err := scanReading(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMetricNotFound
		}
		return nil, err
	}
	return reading, nil
}

// List returns readings matching the filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]*Reading, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserIDs != nil {
		args = append(args, filter.UserIDs)
		conds = append(conds, fmt.Sprintf("user_id = ANY($%d)", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.MetricType != "" {
		args = append(args, string(filter.MetricType))
		conds = append(conds, fmt.Sprintf("metric_type = $%d", len(args)))
	}

	query := `SELECT ` + readingColumns + ` FROM metric_readings`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY recorded_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	result := make([]*Reading, 0)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a reading by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM metric_readings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting reading: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMetricNotFound
	}
	return nil
}

func scanReading(row pgx.Row) (*Reading, error) {
	var (
		reading      Reading
		metricType   string
		source       string
		valueJSON    []byte
		notes        *string
		metadataJSON []byte
	)

	err := row.Scan(
		&reading.ID,
		&reading.UserID,
		&metricType,
		&valueJSON,
		&reading.Unit,
		&source,
		&reading.Timestamp,
		&notes,
		&metadataJSON,
		&reading.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	reading.MetricType = Type(metricType)
	reading.Source = Source(source)
	if notes != nil {
		reading.Notes = *notes
	}
	if err := json.Unmarshal(valueJSON, &reading.Value); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &reading.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	return &reading, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
