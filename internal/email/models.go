// Package email delivers transactional email through an ordered list of
// providers with per-provider retry, failover and an attempt audit log.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	// ErrDeliveryFailed is returned when every provider exhausted its attempts.
	ErrDeliveryFailed = errors.New("email delivery failed")

	// ErrNoProviders is returned when no provider is configured.
	ErrNoProviders = errors.New("no email providers configured")

	// ErrInvalidMessage is returned for a message without a valid recipient,
	// subject or body.
	ErrInvalidMessage = errors.New("invalid email message")
)

// Message is a provider-agnostic email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Validate checks the message has a recipient, a subject and a body.
// Recipient and subject end up in raw headers, so line breaks are rejected.
func (m Message) Validate() error {
	switch {
	case m.To == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	case m.Subject == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	case strings.ContainsAny(m.Subject, "\r\n"):
		return fmt.Errorf("%w: subject contains a line break", ErrInvalidMessage)
	case m.HTML == "" && m.Text == "":
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	if err := ValidateAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient: %v", ErrInvalidMessage, err)
	}
	return nil
}

// ValidateAddress checks that addr is a single RFC 5322 address with no
// line breaks.
func ValidateAddress(addr string) error {
	if strings.ContainsAny(addr, "\r\n") {
		return errors.New("address contains a line break")
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("parsing address %q: %w", addr, err)
	}
	return nil
}

// Provider is one email-sending backend.
type Provider interface {
	// Name identifies the provider in logs and the attempt log.
	Name() string

	// Send delivers the message and returns the provider's message ID.
	Send(ctx context.Context, msg Message) (string, error)
}

// AttemptStatus is the outcome of a single send attempt.
type AttemptStatus string

// Attempt statuses.
const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt is an audit record of one provider send attempt.
type Attempt struct {
	ID                string
	MessageID         string
	Provider          string
	Attempt           int
	Status            AttemptStatus
	ProviderMessageID string
	Error             string
	To                string
	Subject           string
	CreatedAt         time.Time
}

// Result describes a successful delivery.
type Result struct {
	// MessageID correlates every attempt of this logical send.
	MessageID string

	// Provider is the name of the provider that accepted the message.
	Provider string

	// ProviderMessageID is the ID returned by the provider.
	ProviderMessageID string

	// Attempts lists every attempt made, in order.
	Attempts []Attempt
}

// DeliveryError is returned when delivery failed on every provider.
type DeliveryError struct {
	MessageID string
	LastErr   error
	Attempts  []Attempt
}

func (e *DeliveryError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("%s after %d attempts", ErrDeliveryFailed, len(e.Attempts))
	}
	return fmt.Sprintf("%s after %d attempts: %v", ErrDeliveryFailed, len(e.Attempts), e.LastErr)
}

// Is matches ErrDeliveryFailed.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDeliveryFailed
}

func (e *DeliveryError) Unwrap() error {
	return e.LastErr
}
