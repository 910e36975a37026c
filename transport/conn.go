package transport

import (
	"context"
	"io"
)

// Publisher sends raw payloads to a channel. Delivery is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber registers handlers for channels on an open connection.
type Subscriber interface {
	// Subscribe returns once the broker has confirmed the subscription.
	Subscribe(ctx context.Context, channel string, handler MessageHandler) error

	// UnsubscribeAll drops every subscription made on this connection and
	// waits for in-flight deliveries to return.
	UnsubscribeAll(ctx context.Context) error
}

// Conn is one open connection to a pub/sub broker.
type Conn interface {
	Publisher
	Subscriber
	io.Closer
}

// Dialer opens a connection described by a transport-specific connection string.
type Dialer interface {
	Dial(ctx context.Context, connectionString string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, connectionString string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, connectionString string) (Conn, error) {
	return f(ctx, connectionString)
}
