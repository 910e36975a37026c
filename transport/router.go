package transport

import (
	"context"
	"fmt"
	"strings"
)

// Router picks a Dialer by the scheme of the connection string, e.g.
// "redis://" or "kafka://". Strings without a scheme go to Fallback.
type Router struct {
	Schemes  map[string]Dialer
	Fallback Dialer
}

func (r Router) Dial(ctx context.Context, connectionString string) (Conn, error) {
	scheme, _, found := strings.Cut(connectionString, "://")
	if !found {
		if r.Fallback == nil {
			return nil, fmt.Errorf("connection string has no scheme and no fallback transport is configured")
		}
		return r.Fallback.Dial(ctx, connectionString)
	}

	d, ok := r.Schemes[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("unsupported transport scheme %q", scheme)
	}
	return d.Dial(ctx, connectionString)
}
