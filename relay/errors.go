package relay

import "errors"

var (
	// ErrConfiguration is returned by Start before any network activity when a
	// required setting is missing.
	ErrConfiguration = errors.New("relay configuration error")
	// ErrConnection wraps transport failures while connecting or subscribing.
	ErrConnection = errors.New("relay connection error")
	// ErrInvalidState is returned by Start when the relay is already running
	// or has been closed.
	ErrInvalidState = errors.New("invalid relay state")
)
