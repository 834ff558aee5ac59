package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/telecare/telecare/internal/provider/resilience"
)

const (
	// DefaultMaxRetries is the number of attempts per provider used by Send.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the unit of the 2^attempt backoff schedule.
	DefaultBaseDelay = time.Second
)

// State is a step of the delivery state machine.
type State int

// Delivery states.
const (
	StatePending State = iota
	StateAttempting
	StateWaiting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateWaiting:
		return "waiting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ServiceConfig holds configuration for the email service.
type ServiceConfig struct {
	// Providers in priority order. Resolved once at startup.
	Providers []Provider

	// AttemptLog receives every attempt. Defaults to an in-memory log.
	AttemptLog AttemptLog

	// BaseDelay scales the wait between attempts: BaseDelay * 2^attempt.
	// Default: 1 second
	BaseDelay time.Duration

	// CircuitBreaker, when set, is the template for one breaker per provider.
	// The provider name replaces the template's Name.
	CircuitBreaker *resilience.CircuitBreakerConfig

	// Registry receives each provider breaker for status reporting.
	Registry *resilience.Registry

	Logger zerolog.Logger
}

type providerEntry struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[string]
}

// Service sends email with retry and failover.
type Service struct {
	providers []providerEntry
	log       AttemptLog
	baseDelay time.Duration
	registry  *resilience.Registry
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new email service. The provider list is copied.
func NewService(cfg ServiceConfig) *Service {
	if cfg.AttemptLog == nil {
		cfg.AttemptLog = NewInMemoryAttemptLog()
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}

	entries := make([]providerEntry, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		e := providerEntry{provider: p}
		if cfg.CircuitBreaker != nil {
			cbCfg := *cfg.CircuitBreaker
			cbCfg.Name = "email:" + p.Name()
			if cbCfg.OnStateChange == nil {
				cbCfg.OnStateChange = resilience.LogStateChanges(cfg.Logger)
			}
			e.breaker = resilience.NewCircuitBreaker[string](cbCfg)
		}
		if cfg.Registry != nil {
			if e.breaker != nil {
				cfg.Registry.Register(p.Name(), e.breaker)
			} else {
				cfg.Registry.Register(p.Name(), nil)
			}
		}
		entries = append(entries, e)
	}

	return &Service{
		providers: entries,
		log:       cfg.AttemptLog,
		baseDelay: cfg.BaseDelay,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProviderNames returns the configured provider names in priority order.
func (s *Service) ProviderNames() []string {
	names := make([]string, len(s.providers))
	for i, e := range s.providers {
		names[i] = e.provider.Name()
	}
	return names
}

// MaxDuration is the longest SendWithRetry can wait between attempts
// for the given retry budget, excluding the sends themselves.
func (s *Service) MaxDuration(maxRetries int) time.Duration {
	var perProvider time.Duration
	bo := s.newBackOff()
	for i := 1; i < maxRetries; i++ {
		perProvider += bo.NextBackOff()
	}
	return perProvider * time.Duration(len(s.providers))
}

// Send delivers msg with the default retry budget.
func (s *Service) Send(ctx context.Context, msg Message) (*Result, error) {
	return s.SendWithRetry(ctx, msg, DefaultMaxRetries)
}

// delivery is the mutable state of one SendWithRetry call.
type delivery struct {
	state     State
	messageID string
	msg       Message

	providerIdx int
	attempt     int
	backOff     *backoff.ExponentialBackOff
	wait        time.Duration

	providerMessageID string
	lastErr           error
	attempts          []Attempt
}

// SendWithRetry tries each provider in order, up to maxRetries attempts per
// provider, waiting BaseDelay * 2^attempt between attempts of the same
// provider. The first success ends the process. When every provider fails a
// *DeliveryError wrapping ErrDeliveryFailed is returned. Cancelling ctx aborts
// any pending wait.
func (s *Service) SendWithRetry(ctx context.Context, msg Message, maxRetries int) (*Result, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if len(s.providers) == 0 {
		return nil, ErrNoProviders
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	d := &delivery{
		state:     StatePending,
		messageID: "msg_" + uuid.New().String()[:22],
		msg:       msg,
	}

	for {
		switch d.state {
		case StatePending:
			s.startProvider(d, 0)

		case StateAttempting:
			s.attempt(ctx, d, maxRetries)

		case StateWaiting:
			if err := sleep(ctx, d.wait); err != nil {
				d.lastErr = err
				d.state = StateFailed
				continue
			}
			d.attempt++
			d.state = StateAttempting

		case StateSucceeded:
			entry := s.providers[d.providerIdx]
			s.logger.Info().
				Str("message_id", d.messageID).
				Str("provider", entry.provider.Name()).
				Int("attempts", len(d.attempts)).
				Msg("email delivered")
			return &Result{
				MessageID:         d.messageID,
				Provider:          entry.provider.Name(),
				ProviderMessageID: d.providerMessageID,
				Attempts:          d.attempts,
			}, nil

		case StateFailed:
			s.logger.Error().
				Err(d.lastErr).
				Str("message_id", d.messageID).
				Int("attempts", len(d.attempts)).
				Msg("email delivery failed on all providers")
			return nil, &DeliveryError{
				MessageID: d.messageID,
				LastErr:   d.lastErr,
				Attempts:  d.attempts,
			}
		}
	}
}

func (s *Service) startProvider(d *delivery, idx int) {
	if idx >= len(s.providers) {
		d.state = StateFailed
		return
	}
	d.providerIdx = idx
	d.attempt = 1
	d.backOff = s.newBackOff()
	d.state = StateAttempting
}

func (s *Service) attempt(ctx context.Context, d *delivery, maxRetries int) {
	entry := s.providers[d.providerIdx]
	name := entry.provider.Name()

	id, err := s.call(ctx, entry, d.msg)
	s.recordAttempt(ctx, d, name, id, err)

	if err == nil {
		d.providerMessageID = id
		d.state = StateSucceeded
		if s.registry != nil {
			s.registry.RecordSuccess(name)
		}
		return
	}

	d.lastErr = fmt.Errorf("%s attempt %d: %w", name, d.attempt, err)
	if s.registry != nil {
		s.registry.RecordFailure(name, err)
	}

	event := s.logger.Warn().
		Err(err).
		Str("message_id", d.messageID).
		Str("provider", name).
		Int("attempt", d.attempt)

	switch {
	case ctx.Err() != nil:
		event.Msg("email attempt failed, context done")
		d.state = StateFailed
	case errors.Is(err, resilience.ErrCircuitOpen):
		event.Msg("email provider circuit open, failing over")
		s.startProvider(d, d.providerIdx+1)
	case d.attempt >= maxRetries:
		event.Msg("email provider exhausted, failing over")
		s.startProvider(d, d.providerIdx+1)
	default:
		d.wait = d.backOff.NextBackOff()
		event.Dur("retry_in", d.wait).Msg("email attempt failed, retrying")
		d.state = StateWaiting
	}
}

func (s *Service) call(ctx context.Context, entry providerEntry, msg Message) (string, error) {
	if entry.breaker == nil {
		return entry.provider.Send(ctx, msg)
	}
	id, err := entry.breaker.Execute(func() (string, error) {
		return entry.provider.Send(ctx, msg)
	})
	if resilience.IsOpenError(err) {
		return "", resilience.ErrCircuitOpen
	}
	return id, err
}

func (s *Service) recordAttempt(ctx context.Context, d *delivery, provider, providerMessageID string, err error) {
	a := Attempt{
		ID:                "att_" + uuid.New().String()[:22],
		MessageID:         d.messageID,
		Provider:          provider,
		Attempt:           d.attempt,
		Status:            AttemptSucceeded,
		ProviderMessageID: providerMessageID,
		To:                d.msg.To,
		Subject:           d.msg.Subject,
		CreatedAt:         s.now(),
	}
	if err != nil {
		a.Status = AttemptFailed
		a.ProviderMessageID = ""
		a.Error = err.Error()
	}
	d.attempts = append(d.attempts, a)

	// Audit writes outlive the caller's deadline.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if logErr := s.log.Append(logCtx, a); logErr != nil {
		s.logger.Error().
			Err(logErr).
			Str("message_id", d.messageID).
			Msg("failed to record email attempt")
	}
}

func (s *Service) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * s.baseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 1 << 62
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
