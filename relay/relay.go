// Package relay bridges a local event bus and a shared pub/sub channel.
//
// Locally raised envelopes are encoded and published on the channel. Every
// message arriving on the channel is decoded and handed to the local sink,
// except the ones this process published itself: the relay subscribes to the
// channel it publishes on, so without that filter every event would loop back.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zynerotech/eventrelay/codec"
	"github.com/zynerotech/eventrelay/logger"
	"github.com/zynerotech/eventrelay/transport"
)

// Config holds the settings that must be known before Start.
type Config struct {
	ChannelName      string `mapstructure:"channel_name"`
	ConnectionString string `mapstructure:"connection_string"`
	// ApplicationName overrides the application half of the process identity.
	ApplicationName string `mapstructure:"application_name"`
}

// Validate reports the first missing required setting.
func (c Config) Validate() error {
	if c.ChannelName == "" {
		return fmt.Errorf("%w: a channel_name setting is missing", ErrConfiguration)
	}
	if c.ConnectionString == "" {
		return fmt.Errorf("%w: a connection_string setting is missing", ErrConfiguration)
	}
	return nil
}

// Sink receives envelopes raised by other processes.
type Sink interface {
	HandleEvent(ctx context.Context, e transport.Envelope)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e transport.Envelope)

func (f SinkFunc) HandleEvent(ctx context.Context, e transport.Envelope) {
	f(ctx, e)
}

// Option customizes a Relay.
type Option func(*Relay)

// WithLogger replaces the default "relay" component logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to transport.NoOpMetrics.
func WithMetrics(m transport.Metrics) Option {
	return func(r *Relay) {
		if m != nil {
			r.metrics = m
		}
	}
}

// Status is a point-in-time view of the relay for health and status endpoints.
type Status struct {
	State           string    `json:"state"`
	Channel         string    `json:"channel"`
	Identity        Identity  `json:"identity"`
	SubscribedSince *time.Time `json:"subscribed_since,omitempty"`
}

// Relay owns exactly one transport connection and one subscription.
type Relay struct {
	cfg     Config
	id      Identity
	codec   *codec.Codec
	dialer  transport.Dialer
	sink    Sink
	log     *logger.Logger
	metrics transport.Metrics

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu         sync.RWMutex
	state      State
	conn       transport.Conn
	subscribed time.Time
}

// New creates a relay in the Uninitialized state. Nothing touches the network
// until Start.
func New(cfg Config, id Identity, c *codec.Codec, d transport.Dialer, sink Sink, opts ...Option) *Relay {
	if sink == nil {
		sink = SinkFunc(func(context.Context, transport.Envelope) {})
	}
	r := &Relay{
		cfg:     cfg,
		id:      id,
		codec:   c,
		dialer:  d,
		sink:    sink,
		log:     logger.Component("relay"),
		metrics: &transport.NoOpMetrics{},
		state:   StateUninitialized,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start validates the configuration, connects and subscribes. It blocks until
// the subscription is confirmed or ctx is done. There is no internal retry: a
// failed Start leaves the relay in StateFailed and may be called again.
func (r *Relay) Start(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if err := r.cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.state != StateUninitialized && r.state != StateFailed {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidState, state)
	}
	r.state = StateConnecting
	r.mu.Unlock()

	r.log.Info().Msg("Connecting to pub/sub transport")

	conn, err := r.dialer.Dial(ctx, r.cfg.ConnectionString)
	if err != nil {
		r.setState(StateFailed)
		r.log.Error().Err(err).Msg("Failed to connect to pub/sub transport")
		return fmt.Errorf("%w: connect: %w", ErrConnection, err)
	}

	r.log.Info().Str("channel", r.cfg.ChannelName).Msg("Setting up subscription")

	if err := conn.Subscribe(ctx, r.cfg.ChannelName, r.handleMessage); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			r.log.Warn().Err(closeErr).Msg("Failed to close connection after subscribe error")
		}
		r.setState(StateFailed)
		r.log.Error().Err(err).Str("channel", r.cfg.ChannelName).Msg("Failed to subscribe")
		return fmt.Errorf("%w: subscribe %q: %w", ErrConnection, r.cfg.ChannelName, err)
	}

	r.mu.Lock()
	r.conn = conn
	r.state = StateSubscribed
	r.subscribed = time.Now().UTC()
	r.mu.Unlock()

	r.metrics.SetActiveSubscriptions(1)
	r.log.Info().
		Str("channel", r.cfg.ChannelName).
		Str("server_name", r.id.ServerName).
		Str("application_name", r.id.ApplicationName).
		Msg("Relay subscribed")

	return nil
}

// Send encodes e and publishes it on the channel. Failures are logged and
// never returned: a local raise must not fail because the channel did.
// Outside StateSubscribed the envelope is dropped.
func (r *Relay) Send(ctx context.Context, e transport.Envelope) {
	if e.IsZero() {
		return
	}

	r.mu.RLock()
	state, conn := r.state, r.conn
	r.mu.RUnlock()

	if state != StateSubscribed {
		r.log.Warn().
			Str("event_id", e.EventID).
			Uint64("sequence", e.SequenceNumber).
			Str("state", state.String()).
			Msg("Relay is not subscribed, dropping event")
		r.metrics.IncMessagesSent(r.cfg.ChannelName, transport.StatusIgnored)
		return
	}

	data, err := r.codec.Encode(e)
	if err != nil {
		r.log.Error().
			Err(err).
			Str("event_id", e.EventID).
			Uint64("sequence", e.SequenceNumber).
			Msg("Failed to encode event")
		r.metrics.IncMessagesSent(r.cfg.ChannelName, transport.StatusEncodeError)
		return
	}

	r.log.Debug().
		Str("event_id", e.EventID).
		Uint64("sequence", e.SequenceNumber).
		Msg("Sending event")

	if err := conn.Publish(ctx, r.cfg.ChannelName, data); err != nil {
		r.log.Error().
			Err(err).
			Str("event_id", e.EventID).
			Uint64("sequence", e.SequenceNumber).
			Msg("Failed to send event")
	}
}

// Receive processes one inbound message. An empty channel or payload is
// ignored. A decode failure is returned and leaves the subscription intact.
// Envelopes raised by this process are dropped; everything else reaches the
// sink exactly once.
func (r *Relay) Receive(ctx context.Context, channel string, payload []byte) error {
	if channel == "" || len(payload) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		r.metrics.RecordProcessingTime(channel, time.Since(start))
	}()

	if state := r.State(); state != StateSubscribed {
		r.log.Debug().Str("state", state.String()).Msg("Relay is not subscribed, ignoring message")
		r.metrics.IncMessagesProcessed(channel, transport.StatusIgnored)
		return nil
	}

	e, err := r.codec.Decode(payload)
	if err != nil {
		r.metrics.IncMessagesProcessed(channel, transport.StatusDecodeError)
		return err
	}

	r.log.Debug().
		Str("event_id", e.EventID).
		Uint64("sequence", e.SequenceNumber).
		Msg("Received event")

	if r.id.Owns(e) {
		r.log.Debug().
			Str("event_id", e.EventID).
			Msg("Received event originated from this process itself")
		r.metrics.IncMessagesProcessed(channel, transport.StatusSelfOrigin)
		return nil
	}

	r.sink.HandleEvent(ctx, e)
	r.metrics.IncMessagesProcessed(channel, transport.StatusDispatched)
	return nil
}

// handleMessage is the transport-facing callback. One bad message must not
// take the subscription down, so errors and sink panics stop here.
func (r *Relay) handleMessage(ctx context.Context, channel string, payload []byte) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Str("channel", channel).Msg("Event sink panicked")
		}
	}()

	if err := r.Receive(ctx, channel, payload); err != nil {
		r.log.Error().Err(err).Str("channel", channel).Msg("Failed to process received event")
	}
}

// Stop unsubscribes and releases the connection. Stopping a relay that never
// subscribed just marks it closed; stopping a closed relay is a no-op.
func (r *Relay) Stop(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	switch r.state {
	case StateClosed:
		r.mu.Unlock()
		return nil
	case StateSubscribed:
	default:
		r.state = StateClosed
		r.mu.Unlock()
		return nil
	}
	r.state = StateUnsubscribing
	conn := r.conn
	r.mu.Unlock()

	r.log.Info().Str("channel", r.cfg.ChannelName).Msg("Unsubscribing from pub/sub channel")

	var errs []error
	if err := conn.UnsubscribeAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
	}
	if err := conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}

	r.mu.Lock()
	r.conn = nil
	r.state = StateClosed
	r.mu.Unlock()

	r.metrics.SetActiveSubscriptions(0)

	if err := errors.Join(errs...); err != nil {
		r.log.Error().Err(err).Msg("Relay stopped with errors")
		return err
	}
	r.log.Info().Msg("Relay stopped")
	return nil
}

// State returns the current lifecycle state.
func (r *Relay) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Ready reports whether the relay accepts sends and receives.
func (r *Relay) Ready() bool {
	return r.State() == StateSubscribed
}

// Identity returns the identity used for self-origin filtering.
func (r *Relay) Identity() Identity {
	return r.id
}

// Status returns a snapshot for status endpoints.
func (r *Relay) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Status{
		State:    r.state.String(),
		Channel:  r.cfg.ChannelName,
		Identity: r.id,
	}
	if r.state == StateSubscribed {
		since := r.subscribed
		s.SubscribedSince = &since
	}
	return s
}

func (r *Relay) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
