// Package buffer provides the staging area between a producer feeding raw
// bytes and the call that drains them into outbound messages.
package buffer

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrInputClosed is returned by Feed once CloseInput has been called.
var ErrInputClosed = errors.New("input already closed")

// Buffer is safe for one or more producers and one consumer.
//
// Take and CloseInput share the lock so that a drain can never observe the
// close flag while bytes fed before the close are still pending.
type Buffer struct {
	mu       sync.Mutex
	pending  []byte
	maxChunk int
	closed   atomic.Bool
	fed      atomic.Int64
}

// New creates a buffer. maxChunk caps how many bytes a single Take returns;
// zero drains everything.
func New(maxChunk int) *Buffer {
	if maxChunk < 0 {
		maxChunk = 0
	}
	return &Buffer{maxChunk: maxChunk}
}

// Feed appends a copy of p. Feeding after CloseInput is rejected.
func (b *Buffer) Feed(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return ErrInputClosed
	}
	b.pending = append(b.pending, p...)
	b.fed.Add(int64(len(p)))
	return nil
}

// CloseInput marks that no further Feed calls will occur. Idempotent.
func (b *Buffer) CloseInput() {
	b.mu.Lock()
	b.closed.Store(true)
	b.mu.Unlock()
}

// InputClosed reports whether CloseInput was called.
func (b *Buffer) InputClosed() bool {
	return b.closed.Load()
}

// Take drains pending bytes, coalescing everything fed since the last Take.
// drained reports that input is closed and nothing is left, which is the
// only point at which a half-close may be sent.
func (b *Buffer) Take() (chunk []byte, drained bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil, b.closed.Load()
	}

	if b.maxChunk > 0 && len(b.pending) > b.maxChunk {
		chunk = make([]byte, b.maxChunk)
		copy(chunk, b.pending)
		b.pending = append(b.pending[:0], b.pending[b.maxChunk:]...)
		return chunk, false
	}

	// Swap the pending slice out; the caller owns it from here.
	chunk = b.pending
	b.pending = nil
	return chunk, false
}

// Len returns the number of bytes waiting to be taken.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Fed returns the total number of bytes accepted by Feed.
func (b *Buffer) Fed() int64 {
	return b.fed.Load()
}
