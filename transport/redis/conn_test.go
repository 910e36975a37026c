package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynerotech/eventrelay/logger"
	"github.com/zynerotech/eventrelay/transport"
)

type message struct {
	channel string
	payload string
}

type countingMetrics struct {
	transport.NoOpMetrics
	mu       sync.Mutex
	received int
	sent     map[string]int
}

func (m *countingMetrics) IncMessagesReceived(string) {
	m.mu.Lock()
	m.received++
	m.mu.Unlock()
}

func (m *countingMetrics) IncMessagesSent(_ string, status string) {
	m.mu.Lock()
	if m.sent == nil {
		m.sent = make(map[string]int)
	}
	m.sent[status]++
	m.mu.Unlock()
}

func dial(t *testing.T, mr *miniredis.Miniredis, metrics transport.Metrics) transport.Conn {
	t.Helper()
	d := Dialer{Metrics: metrics, Logger: logger.Nop()}
	conn, err := d.Dial(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func collect(out chan<- message) transport.MessageHandler {
	return func(_ context.Context, channel string, payload []byte) {
		out <- message{channel: channel, payload: string(payload)}
	}
}

func TestDialUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dialer{Logger: logger.Nop()}.Dial(ctx, "redis://"+addr)
	assert.Error(t, err)
}

func TestDialInvalidConnectionString(t *testing.T) {
	_, err := Dialer{}.Dial(context.Background(), "localhost,nonsense=1")
	assert.Error(t, err)
}

func TestPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	metrics := &countingMetrics{}
	conn := dial(t, mr, metrics)

	received := make(chan message, 1)
	require.NoError(t, conn.Subscribe(context.Background(), "events", collect(received)))

	require.NoError(t, conn.Publish(context.Background(), "events", []byte(`{"event_id":"X"}`)))

	select {
	case msg := <-received:
		assert.Equal(t, "events", msg.channel)
		assert.Equal(t, `{"event_id":"X"}`, msg.payload)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}

	metrics.mu.Lock()
	assert.Equal(t, 1, metrics.received)
	assert.Equal(t, 1, metrics.sent[transport.StatusSuccess])
	metrics.mu.Unlock()
}

func TestTwoConnectionsShareChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	a := dial(t, mr, nil)
	b := dial(t, mr, nil)

	gotA := make(chan message, 2)
	gotB := make(chan message, 2)
	require.NoError(t, a.Subscribe(context.Background(), "events", collect(gotA)))
	require.NoError(t, b.Subscribe(context.Background(), "events", collect(gotB)))

	require.NoError(t, a.Publish(context.Background(), "events", []byte("hello")))

	for _, ch := range []chan message{gotA, gotB} {
		select {
		case msg := <-ch:
			assert.Equal(t, "hello", msg.payload)
		case <-time.After(2 * time.Second):
			t.Fatal("message was not delivered to every subscriber")
		}
	}
}

func TestUnsubscribeAllStopsDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	conn := dial(t, mr, nil)

	received := make(chan message, 1)
	require.NoError(t, conn.Subscribe(context.Background(), "events", collect(received)))
	require.NoError(t, conn.UnsubscribeAll(context.Background()))

	assert.Eventually(t, func() bool {
		return mr.PubSubNumSub("events")["events"] == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Publish(context.Background(), "events", []byte("late")))
	select {
	case msg := <-received:
		t.Fatalf("unexpected delivery after unsubscribe: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	conn := dial(t, mr, nil)

	require.NoError(t, conn.Subscribe(context.Background(), "events", func(context.Context, string, []byte) {}))
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.Error(t, conn.Subscribe(context.Background(), "events", func(context.Context, string, []byte) {}))
}
