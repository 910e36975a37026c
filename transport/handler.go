package transport

import (
	"context"
)

// MessageHandler is invoked by a Conn for every message delivered on a
// subscribed channel. Implementations must be safe for concurrent use: a
// transport may deliver from several goroutines at once.
type MessageHandler func(ctx context.Context, channel string, payload []byte)
