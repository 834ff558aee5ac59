// Package worker runs background work for Telecare: the async task pool used
// by the ingestion pipeline, and the Pub/Sub and MQTT reading consumers.
package worker

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the worker process.
type Config struct {
	Pool   PoolConfig
	PubSub PubSubConfig
	MQTT   MQTTConfig

	// JobTimeout bounds the processing of one consumed message.
	// Default: 30 seconds
	JobTimeout time.Duration
}

// ConfigFromEnv reads worker configuration from environment variables.
// Consumers whose settings are absent stay disabled.
func ConfigFromEnv() Config {
	return Config{
		Pool: PoolConfig{
			Workers:   getEnvInt("WORKER_POOL_SIZE", DefaultPoolWorkers),
			QueueSize: getEnvInt("WORKER_QUEUE_SIZE", DefaultPoolQueueSize),
		},
		PubSub: PubSubConfig{
			ProjectID:        os.Getenv("GCP_PROJECT_ID"),
			SubscriptionName: os.Getenv("PUBSUB_SUBSCRIPTION"),
		},
		MQTT: MQTTConfig{
			Broker:      os.Getenv("MQTT_BROKER"),
			ClientID:    getEnvOrDefault("MQTT_CLIENT_ID", "telecare-worker"),
			Username:    os.Getenv("MQTT_USERNAME"),
			Password:    os.Getenv("MQTT_PASSWORD"),
			TopicPrefix: getEnvOrDefault("MQTT_TOPIC_PREFIX", DefaultMQTTTopicPrefix),
			QoS:         byte(getEnvInt("MQTT_QOS", 1)),
		},
		JobTimeout: getEnvDuration("WORKER_JOB_TIMEOUT", 30*time.Second),
	}
}

// PubSubEnabled reports whether a subscription is configured.
func (c Config) PubSubEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.SubscriptionName != ""
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
