package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/ingest"
	"github.com/telecare/telecare/internal/metric"
)

// Job types carried in Pub/Sub messages.
const (
	JobIngestReading = "ingest_reading"
	JobHealthCheck   = "health_check"
)

// ErrPermanent marks a message that will never succeed on redelivery.
var ErrPermanent = errors.New("permanent job failure")

// Ingester stores a reading and runs its alerting.
type Ingester interface {
	Ingest(ctx context.Context, reading *metric.Reading) (*ingest.Result, error)
}

// HealthChecker verifies a downstream dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// JobMessage is the envelope published to the worker subscription.
type JobMessage struct {
	JobType string          `json:"job_type"`
	Reading *metric.Reading `json:"reading,omitempty"`
}

// Jobs executes decoded worker messages.
type Jobs struct {
	ingester Ingester
	health   HealthChecker
	logger   zerolog.Logger
}

// NewJobs creates a job executor. health may be nil.
func NewJobs(ingester Ingester, health HealthChecker, logger zerolog.Logger) *Jobs {
	return &Jobs{ingester: ingester, health: health, logger: logger}
}

// Handle runs one encoded job. Errors wrapping ErrPermanent should be acked;
// any other error is transient.
func (j *Jobs) Handle(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: decoding job: %v", ErrPermanent, err)
	}

	switch msg.JobType {
	case JobIngestReading:
		if msg.Reading == nil {
			return fmt.Errorf("%w: ingest job without reading", ErrPermanent)
		}
		_, err := j.IngestReading(ctx, msg.Reading)
		return err
	case JobHealthCheck:
		return j.healthCheck(ctx)
	default:
		return fmt.Errorf("%w: unknown job type %q", ErrPermanent, msg.JobType)
	}
}

// IngestReading runs the pipeline and classifies validation failures as permanent.
func (j *Jobs) IngestReading(ctx context.Context, reading *metric.Reading) (*ingest.Result, error) {
	res, err := j.ingester.Ingest(ctx, reading)
	if err != nil {
		var verr *metric.ValidationError
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		return nil, fmt.Errorf("ingesting reading: %w", err)
	}

	ev := j.logger.Debug().
		Str("metric_id", res.Metric.ID).
		Str("user_id", res.Metric.UserID)
	if res.Alert != nil {
		ev = ev.Str("alert_id", res.Alert.ID)
	}
	ev.Msg("reading ingested")
	return res, nil
}

func (j *Jobs) healthCheck(ctx context.Context) error {
	if j.health == nil {
		j.logger.Debug().Msg("health check passed")
		return nil
	}
	if err := j.health.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	j.logger.Debug().Msg("health check passed")
	return nil
}
