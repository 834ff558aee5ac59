package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema creates every table the repositories read and write. Each
// statement is idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		role       TEXT NOT NULL,
		email      TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS provider_patients (
		provider_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		patient_id  TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		PRIMARY KEY (provider_id, patient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS metric_readings (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		metric_type TEXT NOT NULL,
		value       JSONB NOT NULL,
		unit        TEXT NOT NULL DEFAULT '',
		source      TEXT NOT NULL DEFAULT 'manual',
		recorded_at TIMESTAMPTZ NOT NULL,
		notes       TEXT,
		metadata    JSONB,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS metric_readings_user_recorded_idx
		ON metric_readings (user_id, recorded_at DESC)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		severity        TEXT NOT NULL,
		type            TEXT NOT NULL,
		title           TEXT NOT NULL,
		message         TEXT NOT NULL,
		metric_snapshot JSONB,
		is_read         BOOLEAN NOT NULL DEFAULT FALSE,
		is_acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
		acknowledged_by TEXT,
		acknowledged_at TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS alerts_user_created_idx
		ON alerts (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS alerts_user_unread_idx
		ON alerts (user_id) WHERE NOT is_read`,
	`CREATE TABLE IF NOT EXISTS feature_flags (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS email_delivery_attempts (
		id                  TEXT PRIMARY KEY,
		message_id          TEXT NOT NULL,
		provider            TEXT NOT NULL,
		attempt             INTEGER NOT NULL,
		status              TEXT NOT NULL,
		provider_message_id TEXT,
		error               TEXT,
		recipient           TEXT NOT NULL,
		subject             TEXT NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS email_delivery_attempts_message_idx
		ON email_delivery_attempts (message_id)`,
}

// Migrate applies the schema in a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
