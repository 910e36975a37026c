// Package eventbus is a small in-process event bus that sits next to a relay.
//
// Raise numbers and dispatches events locally and forwards them to the relay;
// HandleEvent receives events from remote instances and fans them out to the
// same handlers.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zynerotech/eventrelay/logger"
	"github.com/zynerotech/eventrelay/relay"
	"github.com/zynerotech/eventrelay/transport"
)

// Wildcard subscribes a handler to every event id.
const Wildcard = "*"

const defaultRecentSize = 100

// Sender forwards locally raised events. *relay.Relay satisfies it.
type Sender interface {
	Send(ctx context.Context, e transport.Envelope)
}

// Handler receives local and remote events.
type Handler func(ctx context.Context, e transport.Envelope)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger. Defaults to the "eventbus" component logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// WithRecentSize sets how many remote events Recent keeps.
func WithRecentSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.recent = newRing(n)
		}
	}
}

type subscription struct {
	id      uint64
	eventID string
	handler Handler
}

// Bus dispatches events to subscribed handlers.
type Bus struct {
	id  relay.Identity
	log *logger.Logger
	seq atomic.Uint64

	outMu sync.RWMutex
	out   Sender

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription

	recent *ring
}

// New creates a bus that stamps events with id. out may be nil and set later
// with SetSender, which is how a bus and a relay that sinks into it are wired.
func New(id relay.Identity, out Sender, opts ...Option) *Bus {
	b := &Bus{
		id:     id,
		out:    out,
		log:    logger.Component("eventbus"),
		recent: newRing(defaultRecentSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetSender replaces the outbound sender.
func (b *Bus) SetSender(out Sender) {
	b.outMu.Lock()
	b.out = out
	b.outMu.Unlock()
}

// Raise builds an envelope with the local identity and the next sequence
// number, dispatches it to local handlers and then forwards it.
func (b *Bus) Raise(ctx context.Context, eventID string, params any) transport.Envelope {
	e := transport.Envelope{
		EventID:         eventID,
		SequenceNumber:  b.seq.Add(1),
		ServerName:      b.id.ServerName,
		ApplicationName: b.id.ApplicationName,
		Parameters:      params,
	}

	b.dispatch(ctx, e)

	b.outMu.RLock()
	out := b.out
	b.outMu.RUnlock()
	if out != nil {
		out.Send(ctx, e)
	}
	return e
}

// HandleEvent accepts an event from a remote instance.
func (b *Bus) HandleEvent(ctx context.Context, e transport.Envelope) {
	b.recent.push(e)
	b.dispatch(ctx, e)
}

// Subscribe registers handler for eventID, or for every event when eventID is
// Wildcard. The returned func removes the subscription.
func (b *Bus) Subscribe(eventID string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, eventID: eventID, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Recent returns up to n of the latest remote events, oldest first.
func (b *Bus) Recent(n int) []transport.Envelope {
	return b.recent.last(n)
}

// Identity returns the identity stamped on raised events.
func (b *Bus) Identity() relay.Identity {
	return b.id
}

func (b *Bus) dispatch(ctx context.Context, e transport.Envelope) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.eventID == Wildcard || s.eventID == e.EventID {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(ctx, h, e)
	}
}

func (b *Bus) call(ctx context.Context, h Handler, e transport.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error().
				Interface("panic", rec).
				Str("event_id", e.EventID).
				Uint64("sequence", e.SequenceNumber).
				Msg("Event handler panicked")
		}
	}()
	h(ctx, e)
}
