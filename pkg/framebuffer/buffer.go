// Package framebuffer provides the latest-wins slot between the sensor
// callback and the stepping loop.
package framebuffer

import (
	"sync"

	"github.com/user/drivecap/pkg/ports"
)

// Buffer holds at most one frame: the most recently delivered one.
//
// Put overwrites an unread frame instead of waiting for the consumer, so the
// producer is never held up by a slow reader. The zero value is ready to use.
type Buffer struct {
	mu    sync.Mutex
	frame *ports.Frame

	puts  uint64
	takes uint64
	drops uint64
}

// Stats is a snapshot of buffer counters.
type Stats struct {
	Puts  uint64 // Frames deposited
	Takes uint64 // Frames handed to the consumer
	Drops uint64 // Frames overwritten before they were read
}

// New creates an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Put deposits frame, evicting any unread frame, and reports whether an
// eviction happened. It never blocks beyond the slot guard. A nil frame is
// ignored.
func (b *Buffer) Put(frame *ports.Frame) (evicted bool) {
	if frame == nil {
		return false
	}

	b.mu.Lock()
	evicted = b.frame != nil
	if evicted {
		b.drops++
	}
	b.frame = frame
	b.puts++
	b.mu.Unlock()
	return evicted
}

// TakeLatest drains the slot. ok is false when nothing was put since the
// previous call.
func (b *Buffer) TakeLatest() (frame *ports.Frame, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frame == nil {
		return nil, false
	}
	frame = b.frame
	b.frame = nil
	b.takes++
	return frame, true
}

// Stats returns the current counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Puts: b.puts, Takes: b.takes, Drops: b.drops}
}
