package gamification_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/gamification"
	"github.com/telecare/telecare/internal/metric"
)

type fakePublisher struct {
	data  []byte
	attrs map[string]string
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	p.data = data
	p.attrs = attrs
	if p.err != nil {
		return "", p.err
	}
	return "srv-1", nil
}

func TestPublishingAwarder_PublishesMetricLogged(t *testing.T) {
	pub := &fakePublisher{}
	a := gamification.NewPublishingAwarder(gamification.PublishingAwarderConfig{
		Publisher: pub,
		Logger:    zerolog.Nop(),
	})

	require.NoError(t, a.AwardForMetric(context.Background(), "usr_a", metric.TypeSteps))

	var ev gamification.Event
	require.NoError(t, json.Unmarshal(pub.data, &ev))
	assert.Equal(t, gamification.EventMetricLogged, ev.Event)
	assert.Equal(t, "usr_a", ev.UserID)
	assert.Equal(t, metric.TypeSteps, ev.MetricType)
	assert.False(t, ev.OccurredAt.IsZero())
	assert.Equal(t, "metric_logged", pub.attrs["event"])

	var raw map[string]any
	require.NoError(t, json.Unmarshal(pub.data, &raw))
	assert.Contains(t, raw, "userId")
	assert.Contains(t, raw, "metricType")
	assert.Contains(t, raw, "occurredAt")
}

func TestPublishingAwarder_PublishError(t *testing.T) {
	a := gamification.NewPublishingAwarder(gamification.PublishingAwarderConfig{
		Publisher: &fakePublisher{err: errors.New("topic not found")},
		Logger:    zerolog.Nop(),
	})

	err := a.AwardForMetric(context.Background(), "usr_a", metric.TypeHeartRate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic not found")
}

func TestLogAwarder(t *testing.T) {
	a := gamification.NewLogAwarder(zerolog.Nop())
	assert.NoError(t, a.AwardForMetric(context.Background(), "usr_a", metric.TypeWeight))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "telecare-dev")
	t.Setenv("GAMIFICATION_TOPIC", "gamification-events")

	cfg := gamification.ConfigFromEnv()
	assert.Equal(t, "telecare-dev", cfg.ProjectID)
	assert.Equal(t, "gamification-events", cfg.Topic)
}

func TestNewPubSubPublisher_RequiresTopic(t *testing.T) {
	_, err := gamification.NewPubSubPublisher(context.Background(), gamification.PubSubConfig{ProjectID: "p"})
	assert.Error(t, err)
}
