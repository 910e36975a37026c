// Package kafka implements the relay transport on Kafka topics.
//
// The channel name is used as the topic. A subscription pins every partition
// of the topic at its end offset before Subscribe returns and reads without a
// consumer group, so every relay instance sees every message published after
// it subscribed, the same broadcast behaviour as Redis pub/sub.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/zynerotech/eventrelay/logger"
	"github.com/zynerotech/eventrelay/transport"
)

const leaderRetryInterval = 200 * time.Millisecond

// Dialer opens Kafka connections. The zero value is usable.
type Dialer struct {
	Metrics transport.Metrics
	Logger  *logger.Logger
}

// Dial parses the connection string and checks that a broker answers.
func (d Dialer) Dial(ctx context.Context, connectionString string) (transport.Conn, error) {
	cfg, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString())
	dialer := &kafka.Dialer{ClientID: clientID, Timeout: 10 * time.Second, DualStack: true}
	sharedTransport := &kafka.Transport{ClientID: clientID}
	if cfg.SASL != nil {
		mechanism, err := cfg.SASL.mechanism()
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		dialer.SASLMechanism = mechanism
		sharedTransport.SASL = mechanism
	}

	if err := ping(ctx, dialer, cfg.Brokers); err != nil {
		return nil, err
	}

	return newConn(cfg, dialer, sharedTransport, d.Metrics, d.Logger), nil
}

func newConn(cfg Config, dialer *kafka.Dialer, tr *kafka.Transport, metrics transport.Metrics, log *logger.Logger) *Conn {
	if metrics == nil {
		metrics = &transport.NoOpMetrics{}
	}
	if log == nil {
		log = logger.Component("transport.kafka")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		cfg:    cfg,
		dialer: dialer,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			Transport:              tr,
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           kafka.RequireOne,
			Compression:            cfg.GetCompressionCodec(),
			AllowAutoTopicCreation: true,
		},
		metrics: metrics,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func ping(ctx context.Context, dialer *kafka.Dialer, brokers []string) error {
	var errs []error
	for _, broker := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("failed to connect to kafka: %w", errors.Join(errs...))
}

// Conn owns one writer shared by all publishes and one reader per subscribed
// partition.
type Conn struct {
	cfg     Config
	dialer  *kafka.Dialer
	writer  *kafka.Writer
	metrics transport.Metrics
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

type subscription struct {
	readers []*kafka.Reader
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (s *subscription) close() error {
	var errs []error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Publish writes payload as a single keyless message to the channel topic.
func (c *Conn) Publish(ctx context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("kafka connection is closed")
	}
	c.mu.Unlock()

	start := time.Now()
	defer func() {
		c.metrics.RecordPublishTime(channel, time.Since(start))
	}()

	if err := c.writer.WriteMessages(ctx, kafka.Message{Topic: channel, Value: payload}); err != nil {
		c.metrics.IncMessagesSent(channel, transport.StatusError)
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	c.metrics.IncMessagesSent(channel, transport.StatusSuccess)
	return nil
}

// Subscribe resolves the topic partitions and their end offsets, then
// delivers messages from each partition to handler until UnsubscribeAll or
// Close. Nothing is delivered if the partitions cannot be resolved.
func (c *Conn) Subscribe(ctx context.Context, channel string, handler transport.MessageHandler) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("kafka connection is closed")
	}

	partitions, err := c.lookupPartitions(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &subscription{}
	for _, p := range partitions {
		offset, err := c.lastOffset(ctx, channel, p.ID)
		if err != nil {
			_ = sub.close()
			return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}

		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:   c.cfg.Brokers,
			Topic:     channel,
			Partition: p.ID,
			Dialer:    c.dialer,
			MinBytes:  1,
			MaxBytes:  10e6,
			MaxWait:   500 * time.Millisecond,
		})
		sub.readers = append(sub.readers, reader)
		if err := reader.SetOffset(offset); err != nil {
			_ = sub.close()
			return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = sub.close()
		return errors.New("kafka connection is closed")
	}

	readCtx, cancel := context.WithCancel(c.ctx)
	sub.cancel = cancel
	for _, r := range sub.readers {
		sub.wg.Add(1)
		go c.consume(readCtx, sub, r, channel, handler)
	}
	c.subs = append(c.subs, sub)

	c.log.Debug().Str("channel", channel).Int("partitions", len(partitions)).Msg("Subscribed")
	return nil
}

// lookupPartitions asks the brokers in order for the topic metadata. A broker
// that auto-creates topics answers LeaderNotAvailable until the topic has a
// leader, so that answer is retried until ctx is done.
func (c *Conn) lookupPartitions(ctx context.Context, topic string) ([]kafka.Partition, error) {
	for {
		var errs []error
		for _, broker := range c.cfg.Brokers {
			partitions, err := c.dialer.LookupPartitions(ctx, "tcp", broker, topic)
			if err == nil && len(partitions) > 0 {
				return partitions, nil
			}
			if err == nil {
				err = fmt.Errorf("topic %s has no partitions", topic)
			}
			errs = append(errs, err)
		}

		err := errors.Join(errs...)
		if !errors.Is(err, kafka.LeaderNotAvailable) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(err, ctx.Err())
		case <-time.After(leaderRetryInterval):
		}
	}
}

func (c *Conn) lastOffset(ctx context.Context, topic string, partition int) (int64, error) {
	var errs []error
	for _, broker := range c.cfg.Brokers {
		conn, err := c.dialer.DialLeader(ctx, "tcp", broker, topic, partition)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		offset, err := conn.ReadLastOffset()
		_ = conn.Close()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return offset, nil
	}
	return 0, fmt.Errorf("read end offset of partition %d: %w", partition, errors.Join(errs...))
}

func (c *Conn) consume(ctx context.Context, sub *subscription, reader *kafka.Reader, channel string, handler transport.MessageHandler) {
	defer sub.wg.Done()
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.log.Debug().Str("channel", channel).Msg("Subscription delivery loop finished")
				return
			}
			c.log.Error().Err(err).Str("channel", channel).Msg("Error reading message")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		c.metrics.IncMessagesReceived(msg.Topic)
		handler(ctx, msg.Topic, msg.Value)
	}
}

// UnsubscribeAll stops every reader and waits for its delivery loop.
func (c *Conn) UnsubscribeAll(_ context.Context) error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		sub.cancel()
		sub.wg.Wait()
		if err := sub.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops subscriptions and flushes the writer. Safe to call twice.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	if err := c.UnsubscribeAll(context.Background()); err != nil {
		errs = append(errs, err)
	}
	c.cancel()
	if err := c.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
	}
	return errors.Join(errs...)
}
