package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig holds configuration for the Pub/Sub consumer.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string

	// MaxOutstandingMessages caps concurrent handlers. Default: 10
	MaxOutstandingMessages int
}

// PubSubHandler consumes device-sync jobs from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *Jobs
	timeout          time.Duration
	logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig, jobs *Jobs, timeout time.Duration, logger zerolog.Logger) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	outstanding := cfg.MaxOutstandingMessages
	if outstanding <= 0 {
		outstanding = 10
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = outstanding
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             jobs,
		timeout:          timeout,
		logger:           logger,
	}, nil
}

// Start processes messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if h.process(ctx, msg.ID, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// process runs a message and reports whether it should be acked.
func (h *PubSubHandler) process(ctx context.Context, id string, data []byte) bool {
	start := time.Now()
	logger := h.logger.With().Str("message_id", id).Logger()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := h.jobs.Handle(ctx, data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(start)).Msg("job completed")
		return true
	case errors.Is(err, ErrPermanent):
		logger.Warn().Err(err).Msg("dropping unprocessable message")
		return true
	default:
		logger.Error().Err(err).Msg("job failed, requesting redelivery")
		return false
	}
}
