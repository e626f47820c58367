package command

import (
	"bytes"
	"sync"

	"github.com/felixgeelhaar/hostprep/internal/ports"
)

// CappedBuffer is an io.Writer that keeps at most limit bytes and drops the
// rest. Writes always report full success so the child is not killed by a
// short write.
type CappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

// NewCappedBuffer creates a buffer holding at most limit bytes.
func NewCappedBuffer(limit int) *CappedBuffer {
	return &CappedBuffer{limit: limit}
}

// Write implements io.Writer.
func (b *CappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// Bytes returns a copy of the captured data, with the truncation marker
// appended when data was dropped.
func (b *CappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, b.buf.Len()+len(ports.TruncationMarker))
	out = append(out, b.buf.Bytes()...)
	if b.truncated {
		out = append(out, ports.TruncationMarker...)
	}
	return out
}

// Truncated reports whether any data was dropped.
func (b *CappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
