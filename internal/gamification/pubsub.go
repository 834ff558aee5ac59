package gamification

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/pubsub/v2"
)

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// ConfigFromEnv reads the publisher configuration. Topic is empty when
// award events are disabled.
func ConfigFromEnv() PubSubConfig {
	return PubSubConfig{
		ProjectID: os.Getenv("GCP_PROJECT_ID"),
		Topic:     os.Getenv("GAMIFICATION_TOPIC"),
	}
}

// PubSubPublisher publishes award events to a Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// NewPubSubPublisher creates a publisher for cfg.Topic.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	if cfg.Topic == "" {
		return nil, errors.New("gamification topic is required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
	}, nil
}

// Publish sends data and waits for the server to acknowledge it.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	res := p.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := res.Get(ctx)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

var _ Publisher = (*PubSubPublisher)(nil)
