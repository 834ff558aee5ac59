package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/metric"
)

// DefaultMQTTTopicPrefix is followed by the user ID in reading topics.
const DefaultMQTTTopicPrefix = "telecare/readings/"

// MQTTConfig holds configuration for the MQTT consumer.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// MQTTSubscriber ingests readings published by home gateways.
type MQTTSubscriber struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	jobs    *Jobs
	timeout time.Duration
	logger  zerolog.Logger
}

// NewMQTTSubscriber connects to the broker.
func NewMQTTSubscriber(cfg MQTTConfig, jobs *Jobs, timeout time.Duration, logger zerolog.Logger) (*MQTTSubscriber, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", token.Error())
	}

	return newMQTTSubscriber(client, cfg, jobs, timeout, logger), nil
}

func newMQTTSubscriber(client mqtt.Client, cfg MQTTConfig, jobs *Jobs, timeout time.Duration, logger zerolog.Logger) *MQTTSubscriber {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = DefaultMQTTTopicPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MQTTSubscriber{
		client:  client,
		prefix:  prefix,
		qos:     cfg.QoS,
		jobs:    jobs,
		timeout: timeout,
		logger:  logger,
	}
}

// Topic returns the subscription filter covering every user.
func (s *MQTTSubscriber) Topic() string {
	return s.prefix + "+"
}

// Start subscribes to reading topics. Messages are processed on paho's
// callback goroutine until Close.
func (s *MQTTSubscriber) Start(ctx context.Context) error {
	base := context.WithoutCancel(ctx)
	token := s.client.Subscribe(s.Topic(), s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		ctx, cancel := context.WithTimeout(base, s.timeout)
		defer cancel()

		if err := s.HandleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
			s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("mqtt reading rejected")
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", s.Topic(), token.Error())
	}

	s.logger.Info().Str("topic", s.Topic()).Msg("mqtt subscriber started")
	return nil
}

// HandleMessage ingests one gateway payload. The owner comes from the topic
// and the source is always device-integration.
func (s *MQTTSubscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	userID := strings.TrimPrefix(topic, s.prefix)
	if userID == topic || userID == "" || strings.Contains(userID, "/") {
		return fmt.Errorf("%w: unexpected topic %q", ErrPermanent, topic)
	}

	var reading metric.Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return fmt.Errorf("%w: decoding reading: %v", ErrPermanent, err)
	}
	reading.UserID = userID
	reading.Source = metric.SourceDeviceIntegration

	_, err := s.jobs.IngestReading(ctx, &reading)
	return err
}

// Close unsubscribes and disconnects.
func (s *MQTTSubscriber) Close() {
	if token := s.client.Unsubscribe(s.Topic()); token.Wait() && token.Error() != nil {
		s.logger.Warn().Err(token.Error()).Msg("mqtt unsubscribe failed")
	}
	s.client.Disconnect(250)
}
