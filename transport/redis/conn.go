// Package redis implements the relay transport on Redis pub/sub.
//
// A dropped connection is re-established by go-redis itself, and an active
// PubSub resubscribes its channels on reconnect. Messages published while the
// connection was down are lost; Redis pub/sub keeps no backlog.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zynerotech/eventrelay/logger"
	"github.com/zynerotech/eventrelay/transport"
)

// Dialer opens Redis connections. The zero value is usable.
type Dialer struct {
	Metrics transport.Metrics
	Logger  *logger.Logger
}

// Dial parses the connection string, connects and pings the server.
func (d Dialer) Dial(ctx context.Context, connectionString string) (transport.Conn, error) {
	opts, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	client := goredis.NewUniversalClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	metrics := d.Metrics
	if metrics == nil {
		metrics = &transport.NoOpMetrics{}
	}
	log := d.Logger
	if log == nil {
		log = logger.Component("transport.redis")
	}

	connCtx, cancel := context.WithCancel(context.Background())
	return &Conn{
		client:  client,
		metrics: metrics,
		log:     log,
		ctx:     connCtx,
		cancel:  cancel,
	}, nil
}

// Conn is one Redis client plus the PubSub subscriptions made through it.
type Conn struct {
	client  goredis.UniversalClient
	metrics transport.Metrics
	log     *logger.Logger

	// ctx is handed to message handlers and cancelled on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   []*goredis.PubSub
	wg     sync.WaitGroup
	closed bool
}

// Publish sends payload with PUBLISH. Delivery is not acknowledged.
func (c *Conn) Publish(ctx context.Context, channel string, payload []byte) error {
	start := time.Now()
	defer func() {
		c.metrics.RecordPublishTime(channel, time.Since(start))
	}()

	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		c.metrics.IncMessagesSent(channel, transport.StatusError)
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	c.metrics.IncMessagesSent(channel, transport.StatusSuccess)
	return nil
}

// Subscribe waits for the SUBSCRIBE confirmation, then delivers messages to
// handler from a dedicated goroutine until UnsubscribeAll or Close.
func (c *Conn) Subscribe(ctx context.Context, channel string, handler transport.MessageHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("redis connection is closed")
	}
	c.mu.Unlock()

	ps := c.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, ps)
	c.mu.Unlock()

	messages := ps.Channel()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for msg := range messages {
			c.metrics.IncMessagesReceived(msg.Channel)
			handler(c.ctx, msg.Channel, []byte(msg.Payload))
		}
		c.log.Debug().Str("channel", channel).Msg("Subscription delivery loop finished")
	}()

	c.log.Debug().Str("channel", channel).Msg("Subscribed")
	return nil
}

// UnsubscribeAll unsubscribes every channel and waits for delivery to stop.
func (c *Conn) UnsubscribeAll(ctx context.Context) error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	var errs []error
	for _, ps := range subs {
		if err := ps.Unsubscribe(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := ps.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.wg.Wait()
	return errors.Join(errs...)
}

// Close drops remaining subscriptions and closes the client. Safe to call twice.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := c.UnsubscribeAll(ctx); err != nil {
		errs = append(errs, err)
	}
	c.cancel()
	if err := c.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
	}
	return errors.Join(errs...)
}
