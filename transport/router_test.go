package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedConn struct {
	Conn
	name string
}

func dialerNamed(name string, seen *string) Dialer {
	return DialerFunc(func(_ context.Context, cs string) (Conn, error) {
		*seen = cs
		return namedConn{name: name}, nil
	})
}

func TestRouterDial(t *testing.T) {
	var seen string
	r := Router{
		Schemes: map[string]Dialer{
			"redis": dialerNamed("redis", &seen),
			"kafka": dialerNamed("kafka", &seen),
		},
		Fallback: dialerNamed("fallback", &seen),
	}

	tests := []struct {
		connectionString string
		want             string
		wantErr          bool
	}{
		{connectionString: "redis://localhost:6379/0", want: "redis"},
		{connectionString: "REDIS://localhost:6379", want: "redis"},
		{connectionString: "kafka://broker:9092", want: "kafka"},
		{connectionString: "localhost:6379,password=secret", want: "fallback"},
		{connectionString: "amqp://guest@localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.connectionString, func(t *testing.T) {
			conn, err := r.Dial(context.Background(), tt.connectionString)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, conn.(namedConn).name)
			assert.Equal(t, tt.connectionString, seen)
		})
	}
}

func TestRouterWithoutFallback(t *testing.T) {
	_, err := Router{}.Dial(context.Background(), "localhost:6379")
	assert.Error(t, err)
}

func TestEnvelopeOrigin(t *testing.T) {
	e := Envelope{EventID: "X", ServerName: "A", ApplicationName: "svc1"}
	assert.Equal(t, Origin{ServerName: "A", ApplicationName: "svc1"}, e.Origin())
	assert.False(t, e.IsZero())
	assert.True(t, Envelope{}.IsZero())
}
