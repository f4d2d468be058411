package ports

// OutputProbe inspects an encoded video file.
type OutputProbe interface {
	Probe(path string) (*VideoInfo, error)
}

// VideoInfo describes an encoded video as read back from its container.
type VideoInfo struct {
	Codec      string
	Width      int
	Height     int
	FrameCount int
	DurationMs int
}
