package mocks

import (
	"sync"

	"github.com/user/drivecap/pkg/ports"
)

// DebugSink is a mock implementation of ports.DebugSink.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	SessionJSON []byte
	Frames      map[int]*ports.Frame
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled: enabled,
		Frames:  make(map[int]*ports.Frame),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SaveFrame(index int, frame *ports.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Frames[index] = frame
	return nil
}

func (m *DebugSink) SaveSessionJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionJSON = data
	return nil
}

var _ ports.DebugSink = (*DebugSink)(nil)

// NullSink is a no-op implementation of ports.DebugSink.
type NullSink struct{}

func (m *NullSink) Enabled() bool                                { return false }
func (m *NullSink) SaveFrame(index int, frame *ports.Frame) error { return nil }
func (m *NullSink) SaveSessionJSON(data []byte) error             { return nil }

var _ ports.DebugSink = (*NullSink)(nil)
