package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskline/helpdesk-service/internal/domain"
	"github.com/deskline/helpdesk-service/internal/events"
)

func TestRedisRelayFansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newInstance := func() (*Hub, *RedisRelay, *fakeSubscriber) {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		hub := NewHub(nil)
		sub := newFakeSubscriber("sub", 0)
		hub.Register(sub)
		relay := NewRedisRelay(client, "helpdesk:test", hub, nil)
		ready := make(chan struct{})
		go func() { _ = relay.Run(ctx, ready) }()
		select {
		case <-ready:
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not subscribe")
		}
		return hub, relay, sub
	}

	_, relayA, subA := newInstance()
	_, _, subB := newInstance()

	ticket := ticketAt("t1", domain.TicketStatusOpen, 1)
	require.NoError(t, relayA.Broadcast(ctx, events.NewTicketEvent(events.KindTicketCreated, ticket)))

	for _, sub := range []*fakeSubscriber{subA, subB} {
		sub := sub
		require.Eventually(t, func() bool { return len(sub.events(t)) == 1 }, 2*time.Second, 10*time.Millisecond)
		got := sub.events(t)[0]
		assert.Equal(t, events.KindTicketCreated, got.Kind)
		assert.Equal(t, "t1", got.Ticket.ID)
	}
}

func TestRedisRelayRunStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	relay := NewRedisRelay(client, "helpdesk:test", NewHub(nil), nil)
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- relay.Run(ctx, ready) }()

	<-ready
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRedisRelayBroadcastFailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	relay := NewRedisRelay(client, "helpdesk:test", NewHub(nil), nil)
	err := relay.Broadcast(context.Background(), events.NewTicketEvent(events.KindTicketCreated, ticketAt("t1", domain.TicketStatusOpen, 1)))
	assert.Error(t, err)
}
