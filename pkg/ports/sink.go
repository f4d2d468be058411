package ports

// DebugSink abstracts debug output for intermediate results.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveFrame saves a frame that was forwarded to the encoder.
	SaveFrame(index int, frame *Frame) error

	// SaveSessionJSON saves the session report as JSON.
	SaveSessionJSON(data []byte) error
}
