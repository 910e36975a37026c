package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynerotech/eventrelay/codec"
	"github.com/zynerotech/eventrelay/logger"
	"github.com/zynerotech/eventrelay/registry"
	"github.com/zynerotech/eventrelay/relay"
	"github.com/zynerotech/eventrelay/transport"
	"github.com/zynerotech/eventrelay/transport/redis"
)

type Foo struct {
	N int `json:"n"`
}

func startRelay(t *testing.T, addr string, id relay.Identity, out chan<- transport.Envelope) *relay.Relay {
	t.Helper()
	c := codec.New(registry.MustNew(registry.Of[Foo]("Foo")))
	r := relay.New(
		relay.Config{ChannelName: "episerver-events", ConnectionString: "redis://" + addr},
		id,
		c,
		redis.Dialer{Logger: logger.Nop()},
		relay.SinkFunc(func(_ context.Context, e transport.Envelope) { out <- e }),
		relay.WithLogger(logger.Nop()),
	)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop(context.Background()) })
	return r
}

func TestRelaysExchangeEventsOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	gotA := make(chan transport.Envelope, 4)
	gotB := make(chan transport.Envelope, 4)
	a := startRelay(t, mr.Addr(), relay.Identity{ServerName: "A", ApplicationName: "svc1"}, gotA)
	startRelay(t, mr.Addr(), relay.Identity{ServerName: "A", ApplicationName: "svc2"}, gotB)

	sent := transport.Envelope{
		EventID:         "X",
		SequenceNumber:  1,
		ServerName:      "A",
		ApplicationName: "svc1",
		Parameters:      Foo{N: 42},
	}
	a.Send(context.Background(), sent)

	select {
	case e := <-gotB:
		assert.Equal(t, sent, e)
	case <-time.After(2 * time.Second):
		t.Fatal("peer relay did not receive the event")
	}

	select {
	case e := <-gotA:
		t.Fatalf("publisher received its own event: %+v", e)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRelayStopReleasesSubscription(t *testing.T) {
	mr := miniredis.RunT(t)

	r := startRelay(t, mr.Addr(), relay.Identity{ServerName: "A", ApplicationName: "svc1"}, make(chan transport.Envelope, 1))
	assert.Equal(t, 1, mr.PubSubNumSub("episerver-events")["episerver-events"])

	require.NoError(t, r.Stop(context.Background()))
	assert.Equal(t, relay.StateClosed, r.State())
	assert.Eventually(t, func() bool {
		return mr.PubSubNumSub("episerver-events")["episerver-events"] == 0
	}, 2*time.Second, 10*time.Millisecond)
}
