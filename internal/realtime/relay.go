package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// DefaultChannelPrefix namespaces per-user relay channels in Redis.
const DefaultChannelPrefix = "telecare:realtime:"

// RelayConfig holds configuration for the Redis relay.
type RelayConfig struct {
	Client        *redis.Client
	Hub           *Hub
	ChannelPrefix string
	Logger        zerolog.Logger
}

// Relay fans events out across API instances. PushToUser publishes to the
// user's channel; every instance subscribes to all user channels and
// delivers to its local hub.
type Relay struct {
	client *redis.Client
	hub    *Hub
	prefix string
	logger zerolog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRelay creates a new Redis relay.
func NewRelay(cfg RelayConfig) *Relay {
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Relay{
		client: cfg.Client,
		hub:    cfg.Hub,
		prefix: prefix,
		logger: cfg.Logger,
	}
}

// PushToUser publishes the event for delivery by every subscribed instance.
func (r *Relay) PushToUser(ctx context.Context, userID, event string, payload any) error {
	msg, err := Encode(event, payload)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.prefix+userID, msg).Err(); err != nil {
		return fmt.Errorf("publishing %s event: %w", event, err)
	}
	return nil
}

// Start subscribes to every user channel and delivers messages to the local
// hub until Close is called. It returns once the subscription is confirmed.
func (r *Relay) Start(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, r.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("subscribing to relay channels: %w", err)
	}

	r.mu.Lock()
	r.pubsub = ps
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ps.Channel(), r.done)
	return nil
}

func (r *Relay) loop(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		userID := strings.TrimPrefix(msg.Channel, r.prefix)
		if userID == "" {
			continue
		}
		n := r.hub.Deliver(userID, []byte(msg.Payload))
		r.logger.Debug().
			Str("user_id", userID).
			Int("connections", n).
			Msg("relayed realtime event")
	}
}

// Close ends the subscription and waits for the delivery loop to stop.
func (r *Relay) Close() error {
	r.mu.Lock()
	ps, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
