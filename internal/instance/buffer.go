package instance

import (
	"io"
	"sync"
)

// Buffer is a bounded, in-memory capture of an instance's combined
// stdout/stderr, used for mail bodies and status dumps. Once full it keeps
// the most recent bytes, dropping the oldest, so a runaway job can't exhaust
// engine memory. An optional Spill writer (wired to a rotated on-disk log
// when a job configures one) receives every byte written, unbounded.
type Buffer struct {
	mu        sync.Mutex
	cap       int
	data      []byte
	spill     io.Writer
	truncated bool
}

// NewBuffer creates a Buffer that retains at most capBytes of output.
func NewBuffer(capBytes int) *Buffer {
	if capBytes <= 0 {
		capBytes = 64 * 1024
	}
	return &Buffer{cap: capBytes}
}

// SetSpill directs a copy of every future write to w in addition to the
// bounded in-memory capture.
func (b *Buffer) SetSpill(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spill = w
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	if b.spill != nil {
		_, _ = b.spill.Write(p)
	}
	b.data = append(b.data, p...)
	if over := len(b.data) - b.cap; over > 0 {
		b.data = b.data[over:]
		b.truncated = true
	}
	b.mu.Unlock()
	return len(p), nil
}

// Bytes returns a copy of the captured output retained so far.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Truncated reports whether any output has been dropped because the
// capture exceeded its capacity.
func (b *Buffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
