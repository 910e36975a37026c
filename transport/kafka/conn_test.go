package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynerotech/eventrelay/logger"
)

// Nothing listens on port 1, so every broker call fails fast.
const unreachableBroker = "127.0.0.1:1"

func newUnreachableConn(t *testing.T) *Conn {
	t.Helper()
	cfg, err := ParseConnectionString("kafka://" + unreachableBroker)
	require.NoError(t, err)

	c := newConn(cfg, &kafka.Dialer{Timeout: 500 * time.Millisecond}, &kafka.Transport{}, nil, logger.Nop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialUnreachableBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dialer{Logger: logger.Nop()}.Dial(ctx, "kafka://"+unreachableBroker)
	assert.Error(t, err)
}

func TestSubscribeFailsWhenPartitionsCannotBeResolved(t *testing.T) {
	c := newUnreachableConn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Subscribe(ctx, "no-such-topic", func(context.Context, string, []byte) {
		t.Error("handler must not be called")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-topic")

	c.mu.Lock()
	assert.Empty(t, c.subs)
	c.mu.Unlock()
	assert.NoError(t, c.UnsubscribeAll(context.Background()))
}

func TestSubscribeAfterClose(t *testing.T) {
	c := newUnreachableConn(t)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	err := c.Subscribe(context.Background(), "events", func(context.Context, string, []byte) {})
	assert.EqualError(t, err, "kafka connection is closed")
	assert.Error(t, c.Publish(context.Background(), "events", []byte("x")))
}
