package ports

import (
	"context"
)

// EncodingSink starts external encoder processes.
type EncodingSink interface {
	// Start launches an encoder configured by cfg and returns its input stream.
	Start(ctx context.Context, cfg SinkConfig) (EncodingStream, error)
}

// EncodingStream is the write side of a running encoder.
type EncodingStream interface {
	// WriteFrame writes one raw frame payload. It may block under backpressure.
	WriteFrame(data []byte) error

	// Close closes the input, waits for the encoder to finish and reports its exit status.
	// Subsequent calls return the first result.
	Close() error
}

// SinkConfig configures an encoder process.
type SinkConfig struct {
	Width       int
	Height      int
	FPS         int
	PixelFormat string // Raw input layout, e.g. "bgr24"
	OutputPath  string

	Codec        string // e.g. "libx264"
	Preset       string // e.g. "veryfast"
	CRF          int    // 0 = encoder default
	OutputFormat string // Output pixel format, e.g. "yuv420p"
}
