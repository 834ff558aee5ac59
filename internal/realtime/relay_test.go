package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecare/telecare/internal/realtime"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRelay_DeliversAcrossInstances(t *testing.T) {
	_, client := newRedis(t)

	// Two instances share Redis; the user is connected to the second only.
	hubA, _ := newTestHub(t, realtime.HubConfig{})
	hubB, srvB := newTestHub(t, realtime.HubConfig{})

	relayA := realtime.NewRelay(realtime.RelayConfig{Client: client, Hub: hubA, Logger: zerolog.Nop()})
	relayB := realtime.NewRelay(realtime.RelayConfig{Client: client, Hub: hubB, Logger: zerolog.Nop()})

	ctx := context.Background()
	require.NoError(t, relayA.Start(ctx))
	require.NoError(t, relayB.Start(ctx))
	t.Cleanup(func() {
		relayA.Close()
		relayB.Close()
	})

	conn := dial(t, srvB, "usr_a")
	waitForClients(t, hubB, "usr_a", 1)

	require.NoError(t, relayA.PushToUser(ctx, "usr_a", "alert:new", map[string]string{"id": "alt_1"}))

	env := readEnvelope(t, conn)
	assert.Equal(t, "alert:new", env["event"])
	assert.Equal(t, map[string]any{"id": "alt_1"}, env["payload"])
}

func TestRelay_PublishesToUserChannel(t *testing.T) {
	_, client := newRedis(t)
	relay := realtime.NewRelay(realtime.RelayConfig{
		Client:        client,
		Hub:           realtime.NewHub(realtime.HubConfig{Logger: zerolog.Nop()}),
		ChannelPrefix: "test:",
		Logger:        zerolog.Nop(),
	})

	ctx := context.Background()
	sub := client.Subscribe(ctx, "test:usr_a")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, relay.PushToUser(ctx, "usr_a", "alert:unread-count", map[string]int{"count": 2}))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, `{"event":"alert:unread-count","payload":{"count":2}}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestRelay_PublishErrorWhenRedisDown(t *testing.T) {
	mr, client := newRedis(t)
	relay := realtime.NewRelay(realtime.RelayConfig{
		Client: client,
		Hub:    realtime.NewHub(realtime.HubConfig{Logger: zerolog.Nop()}),
		Logger: zerolog.Nop(),
	})
	mr.Close()

	err := relay.PushToUser(context.Background(), "usr_a", "alert:new", nil)
	assert.Error(t, err)
}

func TestRelay_CloseWithoutStart(t *testing.T) {
	relay := realtime.NewRelay(realtime.RelayConfig{Logger: zerolog.Nop()})
	assert.NoError(t, relay.Close())
}
