package ports

// Frame is an immutable snapshot of one camera image in encoder layout.
//
// Data holds Height rows of Width 3-byte BGR triples (ffmpeg "bgr24").
// Neither the producer nor any consumer may modify Data once the frame has
// been handed to a buffer.
type Frame struct {
	Width  int
	Height int
	Data   []byte

	// Seq is the simulator frame number the image was rendered at.
	Seq uint64
}

// ClockSettings is the simulator clock configuration.
type ClockSettings struct {
	SynchronousMode   bool    `json:"synchronous_mode"`
	FixedDeltaSeconds float64 `json:"fixed_delta_seconds"` // 0 = variable time step
}
