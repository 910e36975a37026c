package eventbus

import (
	"sync"

	"github.com/zynerotech/eventrelay/transport"
)

// ring keeps the latest envelopes up to a fixed capacity.
type ring struct {
	mu    sync.Mutex
	buf   []transport.Envelope
	next  int
	count int
}

func newRing(size int) *ring {
	return &ring{buf: make([]transport.Envelope, size)}
}

func (r *ring) push(e transport.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// last returns up to n entries, oldest first. n <= 0 means all.
func (r *ring) last(n int) []transport.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]transport.Envelope, n)
	start := (r.next - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
