package email

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// AttemptLog is an append-only store of delivery attempts.
type AttemptLog interface {
	Append(ctx context.Context, attempt Attempt) error
}

// InMemoryAttemptLog keeps attempts in memory.
type InMemoryAttemptLog struct {
	mu       sync.RWMutex
	attempts []Attempt
}

// NewInMemoryAttemptLog creates an empty in-memory attempt log.
func NewInMemoryAttemptLog() *InMemoryAttemptLog {
	return &InMemoryAttemptLog{}
}

// Append records an attempt.
func (l *InMemoryAttemptLog) Append(_ context.Context, attempt Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	return nil
}

// Attempts returns a copy of the recorded attempts in append order.
func (l *InMemoryAttemptLog) Attempts() []Attempt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Attempt, len(l.attempts))
	copy(out, l.attempts)
	return out
}

// SQLAttemptLog appends attempts to the email_delivery_attempts table.
type SQLAttemptLog struct {
	db *sql.DB
}

// NewSQLAttemptLog creates an attempt log on an open database handle.
func NewSQLAttemptLog(db *sql.DB) *SQLAttemptLog {
	return &SQLAttemptLog{db: db}
}

const insertAttemptQuery = `
	INSERT INTO email_delivery_attempts
		(id, message_id, provider, attempt, status, provider_message_id, error, recipient, subject, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Append records an attempt.
func (l *SQLAttemptLog) Append(ctx context.Context, a Attempt) error {
	_, err := l.db.ExecContext(ctx, insertAttemptQuery,
		a.ID, a.MessageID, a.Provider, a.Attempt, string(a.Status),
		nullString(a.ProviderMessageID), nullString(a.Error),
		a.To, a.Subject, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery attempt: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ AttemptLog = (*InMemoryAttemptLog)(nil)
	_ AttemptLog = (*SQLAttemptLog)(nil)
)
