package mocks

import (
	"context"
	"sync"

	"github.com/user/drivecap/pkg/ports"
)

// EncodingSink is a mock implementation of ports.EncodingSink.
type EncodingSink struct {
	StartFunc func(ctx context.Context, cfg ports.SinkConfig) (ports.EncodingStream, error)

	// Recorded calls for verification
	StartCalled bool
	Config      ports.SinkConfig
	Stream      *EncodingStream
}

func (m *EncodingSink) Start(ctx context.Context, cfg ports.SinkConfig) (ports.EncodingStream, error) {
	m.StartCalled = true
	m.Config = cfg
	if m.StartFunc != nil {
		return m.StartFunc(ctx, cfg)
	}
	m.Stream = &EncodingStream{}
	return m.Stream, nil
}

var _ ports.EncodingSink = (*EncodingSink)(nil)

// EncodingStream is a mock implementation of ports.EncodingStream.
type EncodingStream struct {
	mu sync.Mutex

	WriteFrameFunc func(data []byte) error
	CloseFunc      func() error

	// Recorded calls for verification
	Frames     [][]byte
	CloseCalls int
}

func (m *EncodingStream) WriteFrame(data []byte) error {
	m.mu.Lock()
	m.Frames = append(m.Frames, data)
	m.mu.Unlock()
	if m.WriteFrameFunc != nil {
		return m.WriteFrameFunc(data)
	}
	return nil
}

func (m *EncodingStream) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// FrameCount returns the number of frames written so far.
func (m *EncodingStream) FrameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Frames)
}

var _ ports.EncodingStream = (*EncodingStream)(nil)
