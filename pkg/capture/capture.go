// Package capture converts simulator camera images into encoder frames.
package capture

import (
	"sync/atomic"

	"github.com/user/drivecap/pkg/metrics"
	"github.com/user/drivecap/pkg/ports"
)

const (
	srcChannels = 4 // BGRA as delivered by the camera
	dstChannels = 3 // BGR as expected by the encoder (bgr24)
)

// FrameSink receives converted frames. framebuffer.Buffer satisfies it.
type FrameSink interface {
	Put(frame *ports.Frame) (evicted bool)
}

// Adapter is the sensor callback target. It is the only producer into its sink.
type Adapter struct {
	sink    FrameSink
	width   int
	height  int
	logger  ports.Logger
	metrics *metrics.Collector

	captured atomic.Uint64
	rejected atomic.Uint64
}

// New creates an Adapter that accepts images of exactly width x height.
// A zero width or height accepts any size.
func New(sink FrameSink, width, height int, logger ports.Logger, m *metrics.Collector) *Adapter {
	return &Adapter{
		sink:    sink,
		width:   width,
		height:  height,
		logger:  logger.WithComponent("capture"),
		metrics: m,
	}
}

// OnImage converts img and deposits it into the sink.
// It is called from the simulator's delivery goroutine and does O(frame size) work.
func (a *Adapter) OnImage(img ports.RawImage) {
	frame, ok := a.convert(img)
	if !ok {
		a.rejected.Add(1)
		a.metrics.FrameRejected()
		a.logger.Debug("Rejected image %d (%dx%d, %d bytes)", img.Frame, img.Width, img.Height, len(img.Data))
		return
	}

	evicted := a.sink.Put(frame)
	a.captured.Add(1)
	a.metrics.FrameCaptured(evicted)
}

// Captured returns the number of images accepted so far.
func (a *Adapter) Captured() uint64 {
	return a.captured.Load()
}

// Rejected returns the number of images rejected so far.
func (a *Adapter) Rejected() uint64 {
	return a.rejected.Load()
}

func (a *Adapter) convert(img ports.RawImage) (*ports.Frame, bool) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, false
	}
	if (a.width > 0 && img.Width != a.width) || (a.height > 0 && img.Height != a.height) {
		return nil, false
	}
	pixels := img.Width * img.Height
	if len(img.Data) < pixels*srcChannels {
		return nil, false
	}

	return &ports.Frame{
		Width:  img.Width,
		Height: img.Height,
		Data:   DropAlpha(img.Data[:pixels*srcChannels]),
		Seq:    img.Frame,
	}, true
}

// DropAlpha keeps the first three channels of every 4-byte pixel in src.
// The result is a new slice; src is not retained.
func DropAlpha(src []byte) []byte {
	pixels := len(src) / srcChannels
	dst := make([]byte, pixels*dstChannels)
	for i, j := 0, 0; i < pixels*srcChannels; i, j = i+srcChannels, j+dstChannels {
		dst[j] = src[i]
		dst[j+1] = src[i+1]
		dst[j+2] = src[i+2]
	}
	return dst
}
