// Package codec converts envelopes to and from their JSON wire form.
//
// A present parameters value is written as a tagged variant:
//
//	{"event_id":"X","sequence_number":1,"server_name":"A","application_name":"svc1",
//	 "parameters":{"type":"ContentChanged","value":{"content_id":"42"}}}
//
// The tag is the name the value's type was registered under, so decoding
// rebuilds exactly that type. Absent parameters omit the key entirely.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"

	"github.com/zynerotech/eventrelay/registry"
	"github.com/zynerotech/eventrelay/transport"
)

type wireEnvelope struct {
	EventID         string          `json:"event_id"`
	SequenceNumber  uint64          `json:"sequence_number"`
	ServerName      string          `json:"server_name"`
	ApplicationName string          `json:"application_name"`
	Parameters      *wireParameters `json:"parameters,omitempty"`
}

type wireParameters struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Codec is safe for concurrent use; it only reads its registry.
type Codec struct {
	registry *registry.Registry
}

// New returns a codec resolving parameter types through reg.
func New(reg *registry.Registry) *Codec {
	if reg == nil {
		reg = registry.MustNew()
	}
	return &Codec{registry: reg}
}

// Registry returns the registry the codec resolves payload types with.
func (c *Codec) Registry() *registry.Registry {
	return c.registry
}

// Encode serializes e. Parameters of an unregistered type fail with
// ErrUnknownPayloadType instead of being written under some other name.
func (c *Codec) Encode(e transport.Envelope) ([]byte, error) {
	w := wireEnvelope{
		EventID:         e.EventID,
		SequenceNumber:  e.SequenceNumber,
		ServerName:      e.ServerName,
		ApplicationName: e.ApplicationName,
	}

	if e.Parameters != nil {
		name, ok := c.registry.NameOf(e.Parameters)
		if !ok {
			return nil, &EncodeError{
				EventID: e.EventID,
				Err:     fmt.Errorf("%w: %T", ErrUnknownPayloadType, e.Parameters),
			}
		}

		value, err := sonic.Marshal(e.Parameters)
		if err != nil {
			return nil, &EncodeError{EventID: e.EventID, Err: fmt.Errorf("marshal parameters %q: %w", name, err)}
		}
		w.Parameters = &wireParameters{Type: name, Value: value}
	}

	data, err := sonic.Marshal(&w)
	if err != nil {
		return nil, &EncodeError{EventID: e.EventID, Err: err}
	}
	return data, nil
}

// Decode rebuilds an envelope from data. Every failure is a *DecodeError;
// an unknown discriminator additionally matches ErrUnknownPayloadType.
func (c *Codec) Decode(data []byte) (transport.Envelope, error) {
	var w wireEnvelope
	if err := sonic.Unmarshal(data, &w); err != nil {
		return transport.Envelope{}, &DecodeError{Err: err}
	}

	e := transport.Envelope{
		EventID:         w.EventID,
		SequenceNumber:  w.SequenceNumber,
		ServerName:      w.ServerName,
		ApplicationName: w.ApplicationName,
	}

	if w.Parameters == nil {
		return e, nil
	}

	if w.Parameters.Type == "" {
		return transport.Envelope{}, &DecodeError{Err: errors.New("parameters present without a type discriminator")}
	}

	params, err := c.DecodeParameters(w.Parameters.Type, w.Parameters.Value)
	if err != nil {
		return transport.Envelope{}, err
	}
	e.Parameters = params

	return e, nil
}

// DecodeParameters builds a value of the type registered as typeName from its
// JSON form. An empty value yields the zero value of that type.
func (c *Codec) DecodeParameters(typeName string, value []byte) (any, error) {
	typ, ok := c.registry.TypeOf(typeName)
	if !ok {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %q", ErrUnknownPayloadType, typeName)}
	}

	ptr := reflect.New(typ)
	if len(value) > 0 {
		if err := sonic.Unmarshal(value, ptr.Interface()); err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("unmarshal parameters %q: %w", typeName, err)}
		}
	}
	return ptr.Elem().Interface(), nil
}
