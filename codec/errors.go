package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownPayloadType is wrapped by EncodeError and DecodeError when a
// payload type or discriminator is not in the registry.
var ErrUnknownPayloadType = errors.New("unknown payload type")

// EncodeError reports a failure to serialize an envelope.
type EncodeError struct {
	EventID string
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode event %q: %v", e.EventID, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DecodeError reports a failure to rebuild an envelope from wire bytes.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
