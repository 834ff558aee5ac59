// Package gamification notifies the rewards system about user activity.
// Point math lives downstream; this package only emits events.
package gamification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/metric"
)

// EventMetricLogged is emitted for every stored reading.
const EventMetricLogged = "metric_logged"

// Awarder grants activity rewards.
type Awarder interface {
	AwardForMetric(ctx context.Context, userID string, metricType metric.Type) error
}

// Event is the payload published for downstream reward processing.
type Event struct {
	Event      string      `json:"event"`
	UserID     string      `json:"userId"`
	MetricType metric.Type `json:"metricType"`
	OccurredAt time.Time   `json:"occurredAt"`
}

// LogAwarder only logs awards. Used when no topic is configured.
type LogAwarder struct {
	logger zerolog.Logger
}

// NewLogAwarder creates a logging awarder.
func NewLogAwarder(logger zerolog.Logger) *LogAwarder {
	return &LogAwarder{logger: logger}
}

// AwardForMetric implements Awarder.
func (a *LogAwarder) AwardForMetric(_ context.Context, userID string, metricType metric.Type) error {
	a.logger.Debug().
		Str("user_id", userID).
		Str("metric_type", string(metricType)).
		Msg("metric logged award")
	return nil
}

// Publisher sends an encoded event and returns the broker message ID.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// PublishingAwarderConfig holds configuration for the publishing awarder.
type PublishingAwarderConfig struct {
	Publisher Publisher
	Logger    zerolog.Logger
}

// PublishingAwarder emits metric_logged events through a Publisher.
type PublishingAwarder struct {
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewPublishingAwarder creates a new publishing awarder.
func NewPublishingAwarder(cfg PublishingAwarderConfig) *PublishingAwarder {
	return &PublishingAwarder{
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AwardForMetric implements Awarder.
func (a *PublishingAwarder) AwardForMetric(ctx context.Context, userID string, metricType metric.Type) error {
	data, err := json.Marshal(Event{
		Event:      EventMetricLogged,
		UserID:     userID,
		MetricType: metricType,
		OccurredAt: a.now(),
	})
	if err != nil {
		return fmt.Errorf("encoding award event: %w", err)
	}

	id, err := a.publisher.Publish(ctx, data, map[string]string{"event": EventMetricLogged})
	if err != nil {
		return fmt.Errorf("publishing award event: %w", err)
	}

	a.logger.Debug().
		Str("user_id", userID).
		Str("metric_type", string(metricType)).
		Str("message_id", id).
		Msg("award event published")
	return nil
}

var (
	_ Awarder = (*LogAwarder)(nil)
	_ Awarder = (*PublishingAwarder)(nil)
)
