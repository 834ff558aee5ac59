// Package notify fans a newly created alert out to real-time push and email.
package notify

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/email"
	"github.com/telecare/telecare/internal/featureflags"
	"github.com/telecare/telecare/internal/user"
)

const meterName = "github.com/telecare/telecare/internal/notify"

// Real-time event names.
const (
	EventAlertNew    = "alert:new"
	EventUnreadCount = "alert:unread-count"
)

// Pusher emits an event to every connection of one user.
type Pusher interface {
	PushToUser(ctx context.Context, userID, event string, payload any) error
}

// UnreadCounter derives a user's unread alert count from the alert store.
type UnreadCounter interface {
	CountUnread(ctx context.Context, userID string) (int, error)
}

// EmailSender delivers a rendered email.
type EmailSender interface {
	Send(ctx context.Context, msg email.Message) (*email.Result, error)
}

// FlagChecker reports whether a feature flag is on.
type FlagChecker interface {
	IsEnabled(ctx context.Context, key string) bool
}

// Config holds configuration for the dispatcher. Every collaborator is
// optional; a missing one disables its channel.
type Config struct {
	Pusher        Pusher
	UnreadCounter UnreadCounter
	Email         EmailSender
	Flags         FlagChecker
	Logger        zerolog.Logger

	// EmailMinSeverity is the lowest severity that is emailed. Default: high
	EmailMinSeverity alert.Severity
}

// Dispatcher notifies interested parties about a new alert.
type Dispatcher struct {
	pusher      Pusher
	counter     UnreadCounter
	email       EmailSender
	flags       FlagChecker
	logger      zerolog.Logger
	minSeverity alert.Severity

	dispatched  otelmetric.Int64Counter
	emailFailed otelmetric.Int64Counter
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	meter := otel.Meter(meterName)

	dispatched, err := meter.Int64Counter(
		"alerts.dispatched",
		otelmetric.WithDescription("Alerts handed to the notification dispatcher"),
		otelmetric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatched counter: %w", err)
	}

	emailFailed, err := meter.Int64Counter(
		"alerts.email.failed",
		otelmetric.WithDescription("Alert emails that failed on every provider"),
		otelmetric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating email failure counter: %w", err)
	}

	minSeverity := cfg.EmailMinSeverity
	if !minSeverity.IsValid() {
		minSeverity = alert.SeverityHigh
	}

	return &Dispatcher{
		pusher:      cfg.Pusher,
		counter:     cfg.UnreadCounter,
		email:       cfg.Email,
		flags:       cfg.Flags,
		logger:      cfg.Logger,
		minSeverity: minSeverity,
		dispatched:  dispatched,
		emailFailed: emailFailed,
	}, nil
}

// Dispatch pushes the alert to the subject's real-time channel, refreshes
// their unread badge and emails them for high and critical alerts. Each
// channel fails independently; nothing is returned to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, a *alert.Alert, subject user.User) {
	if a == nil {
		return
	}
	d.dispatched.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("severity", string(a.Severity))))

	log := d.logger.With().
		Str("alert_id", a.ID).
		Str("user_id", a.UserID).
		Str("severity", string(a.Severity)).
		Logger()

	d.guard(log, "push", func() error { return d.push(ctx, a) })
	d.guard(log, "unread_count", func() error { return d.pushUnreadCount(ctx, a.UserID) })
	d.guard(log, "email", func() error { return d.sendEmail(ctx, log, a, subject) })
}

func (d *Dispatcher) guard(log zerolog.Logger, channel string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("channel", channel).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("notification channel panicked")
		}
	}()

	if err := fn(); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("notification channel failed")
	}
}

func (d *Dispatcher) pushDisabled(ctx context.Context) bool {
	return d.pusher == nil || d.flagOn(ctx, featureflags.FlagDisableRealtimePush)
}

func (d *Dispatcher) flagOn(ctx context.Context, key string) bool {
	return d.flags != nil && d.flags.IsEnabled(ctx, key)
}

func (d *Dispatcher) push(ctx context.Context, a *alert.Alert) error {
	if d.pushDisabled(ctx) {
		return nil
	}
	if err := d.pusher.PushToUser(ctx, a.UserID, EventAlertNew, map[string]any{"alert": a}); err != nil {
		return fmt.Errorf("pushing alert: %w", err)
	}
	return nil
}

// RefreshUnreadCount pushes the current unread count to userID after an
// alert changed state outside the dispatch path. Failures are logged.
func (d *Dispatcher) RefreshUnreadCount(ctx context.Context, userID string) {
	log := d.logger.With().Str("user_id", userID).Logger()
	d.guard(log, "unread_count", func() error {
		return d.pushUnreadCount(ctx, userID)
	})
}

func (d *Dispatcher) pushUnreadCount(ctx context.Context, userID string) error {
	if d.pushDisabled(ctx) || d.counter == nil {
		return nil
	}
	count, err := d.counter.CountUnread(ctx, userID)
	if err != nil {
		return fmt.Errorf("counting unread alerts: %w", err)
	}
	if err := d.pusher.PushToUser(ctx, userID, EventUnreadCount, map[string]any{"count": count}); err != nil {
		return fmt.Errorf("pushing unread count: %w", err)
	}
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, log zerolog.Logger, a *alert.Alert, subject user.User) error {
	if d.email == nil || !a.Severity.AtLeast(d.minSeverity) {
		return nil
	}
	if d.flagOn(ctx, featureflags.FlagDisableAlertEmails) {
		log.Debug().Msg("alert emails disabled by feature flag")
		return nil
	}
	if subject.Email == "" {
		log.Debug().Msg("subject has no email address, skipping email")
		return nil
	}

	msg, err := RenderEmail(a, subject)
	if err != nil {
		return err
	}

	result, err := d.email.Send(ctx, msg)
	if err != nil {
		d.emailFailed.Add(ctx, 1)
		return fmt.Errorf("sending alert email: %w", err)
	}

	log.Info().
		Str("provider", result.Provider).
		Str("message_id", result.MessageID).
		Msg("alert email sent")
	return nil
}
