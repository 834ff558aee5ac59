// Package ingest orchestrates the write path for a health reading: store it,
// evaluate it, raise an alert when needed and hand the alert off for
// notification without delaying the caller.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/telecare/telecare/internal/alert"
	"github.com/telecare/telecare/internal/featureflags"
	"github.com/telecare/telecare/internal/gamification"
	"github.com/telecare/telecare/internal/metric"
	"github.com/telecare/telecare/internal/threshold"
	"github.com/telecare/telecare/internal/user"
)

const instrumentationName = "github.com/telecare/telecare/internal/ingest"

// DefaultDispatchTimeout bounds a single background dispatch.
const DefaultDispatchTimeout = 2 * time.Minute

// ErrNotConfigured is returned by NewPipeline when a required collaborator is missing.
var ErrNotConfigured = errors.New("ingest pipeline is missing a required collaborator")

// MetricRecorder validates and stores readings.
type MetricRecorder interface {
	Record(ctx context.Context, reading *metric.Reading) (*metric.Reading, error)
}

// Evaluator decides whether a reading warrants an alert.
type Evaluator interface {
	Evaluate(reading *metric.Reading) *threshold.Decision
}

// AlertCreator stores new alerts.
type AlertCreator interface {
	Create(ctx context.Context, a *alert.Alert) (*alert.Alert, error)
}

// Dispatcher notifies interested parties about a new alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, a *alert.Alert, subject user.User)
}

// UserDirectory resolves the alert subject.
type UserDirectory interface {
	Get(ctx context.Context, id string) (*user.User, error)
}

// FlagChecker reports whether a feature flag is on.
type FlagChecker interface {
	IsEnabled(ctx context.Context, key string) bool
}

// TaskRunner runs background work. Submit must not block.
type TaskRunner interface {
	Submit(name string, fn func())
}

// Result is the outcome of one ingestion. Alert is nil when none was raised.
type Result struct {
	Metric *metric.Reading `json:"metric"`
	Alert  *alert.Alert    `json:"alert,omitempty"`
}

// Config holds configuration for the pipeline.
type Config struct {
	Metrics   MetricRecorder
	Evaluator Evaluator
	Alerts    AlertCreator

	// Optional collaborators.
	Dispatcher Dispatcher
	Users      UserDirectory
	Awarder    gamification.Awarder
	DedupGate  alert.Gate
	Flags      FlagChecker
	Runner     TaskRunner

	// DispatchTimeout bounds each background dispatch.
	// Default: DefaultDispatchTimeout
	DispatchTimeout time.Duration

	Logger zerolog.Logger
}

// Pipeline is the single write entrypoint for readings.
type Pipeline struct {
	metrics    MetricRecorder
	evaluator  Evaluator
	alerts     AlertCreator
	dispatcher Dispatcher
	users      UserDirectory
	awarder    gamification.Awarder
	gate       alert.Gate
	flags      FlagChecker
	runner     TaskRunner
	timeout    time.Duration
	logger     zerolog.Logger

	tracer     trace.Tracer
	ingested   otelmetric.Int64Counter
	raised     otelmetric.Int64Counter
	suppressed otelmetric.Int64Counter

	inflight sync.WaitGroup
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Metrics == nil || cfg.Evaluator == nil || cfg.Alerts == nil {
		return nil, ErrNotConfigured
	}

	meter := otel.Meter(instrumentationName)

	ingested, err := meter.Int64Counter(
		"metrics.ingested",
		otelmetric.WithDescription("Readings stored by the ingestion pipeline"),
		otelmetric.WithUnit("{reading}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ingested counter: %w", err)
	}

	raised, err := meter.Int64Counter(
		"alerts.raised",
		otelmetric.WithDescription("Alerts created from readings"),
		otelmetric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating raised counter: %w", err)
	}

	suppressed, err := meter.Int64Counter(
		"alerts.suppressed",
		otelmetric.WithDescription("Alerts skipped by the dedup window"),
		otelmetric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating suppressed counter: %w", err)
	}

	timeout := cfg.DispatchTimeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}

	runner := cfg.Runner
	if runner == nil {
		runner = goRunner{}
	}

	return &Pipeline{
		metrics:    cfg.Metrics,
		evaluator:  cfg.Evaluator,
		alerts:     cfg.Alerts,
		dispatcher: cfg.Dispatcher,
		users:      cfg.Users,
		awarder:    cfg.Awarder,
		gate:       cfg.DedupGate,
		flags:      cfg.Flags,
		runner:     runner,
		timeout:    timeout,
		logger:     cfg.Logger,
		tracer:     otel.Tracer(instrumentationName),
		ingested:   ingested,
		raised:     raised,
		suppressed: suppressed,
	}, nil
}

// Ingest stores the reading and raises an alert if it is out of range.
// Only a validation or storage failure of the reading itself is returned;
// everything after that is logged and absorbed.
func (p *Pipeline) Ingest(ctx context.Context, reading *metric.Reading) (*Result, error) {
	if reading == nil {
		return nil, metric.MissingReadingError()
	}

	ctx, span := p.tracer.Start(ctx, "ingest.Ingest",
		trace.WithAttributes(
			attribute.String("user.id", reading.UserID),
			attribute.String("metric.type", string(reading.MetricType)),
		),
	)
	defer span.End()

	stored, err := p.metrics.Record(ctx, reading)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recording reading failed")
		return nil, err
	}
	p.ingested.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("metric_type", string(stored.MetricType))))

	log := p.logger.With().
		Str("metric_id", stored.ID).
		Str("user_id", stored.UserID).
		Str("metric_type", string(stored.MetricType)).
		Logger()

	result := &Result{Metric: stored}

	if decision := p.evaluator.Evaluate(stored); decision != nil {
		result.Alert = p.raise(ctx, log, stored, decision)
	}
	if result.Alert != nil {
		span.SetAttributes(
			attribute.String("alert.id", result.Alert.ID),
			attribute.String("alert.severity", string(result.Alert.Severity)),
		)
		p.dispatch(ctx, log, result.Alert)
	}

	p.award(ctx, log, stored)

	return result, nil
}

// Wait blocks until all background work started by Ingest has finished.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

func (p *Pipeline) raise(ctx context.Context, log zerolog.Logger, r *metric.Reading, d *threshold.Decision) *alert.Alert {
	candidate := d.Alert(r.UserID)

	claim, ok := p.admit(ctx, log, r, d.Severity)
	if !ok {
		p.suppressed.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("severity", string(d.Severity))))
		return nil
	}

	created, err := p.alerts.Create(ctx, candidate)
	if err != nil {
		log.Error().Err(err).Str("severity", string(d.Severity)).Msg("failed to create alert")
		p.release(ctx, log, claim)
		return nil
	}

	p.raised.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("severity", string(created.Severity))))
	log.Info().
		Str("alert_id", created.ID).
		Str("severity", string(created.Severity)).
		Msg("alert raised")
	return created
}

// admit applies the dedup window and returns the claimed key, if any.
// Gate errors let the alert through.
func (p *Pipeline) admit(ctx context.Context, log zerolog.Logger, r *metric.Reading, sev alert.Severity) (*alert.DedupKey, bool) {
	if p.gate == nil || p.flagOn(ctx, featureflags.FlagDisableAlertDedup) {
		return nil, true
	}

	key := alert.DedupKey{UserID: r.UserID, MetricType: r.MetricType, Severity: sev}
	ok, err := p.gate.Allow(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg("dedup gate unavailable, raising alert")
		return nil, true
	}
	if !ok {
		log.Debug().Str("severity", string(sev)).Msg("alert suppressed by dedup window")
		return nil, false
	}
	return &key, true
}

// release frees a dedup claim whose alert was not stored, so the condition
// is raised again by the next reading instead of staying silent for the window.
func (p *Pipeline) release(ctx context.Context, log zerolog.Logger, claim *alert.DedupKey) {
	if claim == nil {
		return
	}
	if err := p.gate.Release(ctx, *claim); err != nil {
		log.Warn().Err(err).Msg("failed to release dedup window")
	}
}

func (p *Pipeline) dispatch(ctx context.Context, log zerolog.Logger, a *alert.Alert) {
	if p.dispatcher == nil {
		return
	}

	detached := context.WithoutCancel(ctx)
	p.background(log, "dispatch", func() {
		ctx, cancel := context.WithTimeout(detached, p.timeout)
		defer cancel()

		p.dispatcher.Dispatch(ctx, a, p.subject(ctx, log, a.UserID))
	})
}

// subject resolves the alert owner. A missing directory entry still
// dispatches with the ID alone.
func (p *Pipeline) subject(ctx context.Context, log zerolog.Logger, userID string) user.User {
	if p.users == nil {
		return user.User{ID: userID}
	}
	u, err := p.users.Get(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("alert subject lookup failed, dispatching without contact details")
		return user.User{ID: userID}
	}
	return *u
}

func (p *Pipeline) award(ctx context.Context, log zerolog.Logger, r *metric.Reading) {
	if p.awarder == nil || p.flagOn(ctx, featureflags.FlagDisableGamification) {
		return
	}

	detached := context.WithoutCancel(ctx)
	userID, metricType := r.UserID, r.MetricType
	p.background(log, "award", func() {
		ctx, cancel := context.WithTimeout(detached, 30*time.Second)
		defer cancel()

		if err := p.awarder.AwardForMetric(ctx, userID, metricType); err != nil {
			log.Warn().Err(err).Msg("gamification award failed")
		}
	})
}

func (p *Pipeline) background(log zerolog.Logger, name string, fn func()) {
	p.inflight.Add(1)
	p.runner.Submit("ingest."+name, func() {
		defer p.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("task", name).
					Interface("panic", rec).
					Str("stack", string(debug.Stack())).
					Msg("background task panicked")
			}
		}()
		fn()
	})
}

func (p *Pipeline) flagOn(ctx context.Context, key string) bool {
	return p.flags != nil && p.flags.IsEnabled(ctx, key)
}

type goRunner struct{}

func (goRunner) Submit(_ string, fn func()) { go fn() }
