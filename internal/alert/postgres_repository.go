package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL alert repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const alertColumns = `id, user_id, severity, type, title, message, metric_snapshot,
	is_read, is_acknowledged, acknowledged_by, acknowledged_at, created_at, updated_at`

// Create stores a new alert.
func (r *PostgresRepository) Create(ctx context.Context, a *Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var snapshotJSON []byte
	if a.MetricSnapshot != nil {
		var err error
		snapshotJSON, err = json.Marshal(a.MetricSnapshot)
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
	}

	var ackBy *string
	if a.AcknowledgedBy != "" {
		ackBy = &a.AcknowledgedBy
	}

	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.UserID,
		string(a.Severity),
		string(a.Type),
		a.Title,
		a.Message,
		snapshotJSON,
		a.IsRead,
		a.IsAcknowledged,
		ackBy,
		a.AcknowledgedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// Get retrieves an alert by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

// List returns alerts matching the filter, newest first, up to limit.
func (r *PostgresRepository) List(ctx context.Context, filter Filter, limit int) ([]*Alert, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserIDs != nil {
		add("user_id = ANY($%d)", filter.UserIDs)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Severity != nil {
		add("severity = $%d", string(*filter.Severity))
	}
	if filter.IsRead != nil {
		add("is_read = $%d", *filter.IsRead)
	}
	if filter.IsAcknowledged != nil {
		add("is_acknowledged = $%d", *filter.IsAcknowledged)
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	result := make([]*Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountUnread counts unread alerts for a user.
func (r *PostgresRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE user_id = $1 AND NOT is_read`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread alerts: %w", err)
	}
	return count, nil
}

// MarkRead sets isRead.
func (r *PostgresRepository) MarkRead(ctx context.Context, id string, at time.Time) (*Alert, error) {
	query := `
		UPDATE alerts SET
			updated_at = CASE WHEN is_read THEN updated_at ELSE $2 END,
			is_read = true
		WHERE id = $1
		RETURNING ` + alertColumns
	return r.queryOne(ctx, query, id, at)
}

// Acknowledge records the first acknowledgement.
func (r *PostgresRepository) Acknowledge(ctx context.Context, id, byUserID string, at time.Time) (*Alert, error) {
	query := `
		UPDATE alerts SET
			acknowledged_by = CASE WHEN is_acknowledged THEN acknowledged_by ELSE $2 END,
			acknowledged_at = CASE WHEN is_acknowledged THEN acknowledged_at ELSE $3 END,
			updated_at = CASE WHEN is_acknowledged THEN updated_at ELSE $3 END,
			is_acknowledged = true
		WHERE id = $1
		RETURNING ` + alertColumns
	return r.queryOne(ctx, query, id, byUserID, at)
}

// Delete removes an alert by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*Alert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanAlert(row pgx.Row) (*Alert, error) {
	var (
		a            Alert
		severity     string
		alertType    string
		snapshotJSON []byte
		ackBy        *string
	)

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&severity,
		&alertType,
		&a.Title,
		&a.Message,
		&snapshotJSON,
		&a.IsRead,
		&a.IsAcknowledged,
		&ackBy,
		&a.AcknowledgedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Severity = Severity(severity)
	a.Type = Type(alertType)
	if ackBy != nil {
		a.AcknowledgedBy = *ackBy
	}
	if len(snapshotJSON) > 0 {
		var snap MetricSnapshot
		if err := json.Unmarshal(snapshotJSON, &snap); err != nil {
			return nil, fmt.Errorf("decoding snapshot: %w", err)
		}
		a.MetricSnapshot = &snap
	}
	return &a, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
