package worker

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

func NewTestMQTTSubscriber(client mqtt.Client, cfg MQTTConfig, jobs *Jobs) *MQTTSubscriber {
	return newMQTTSubscriber(client, cfg, jobs, time.Second, zerolog.Nop())
}

func ProcessPubSub(jobs *Jobs, data []byte) bool {
	h := &PubSubHandler{jobs: jobs, timeout: time.Second, logger: zerolog.Nop()}
	return h.process(context.Background(), "msg-1", data)
}
