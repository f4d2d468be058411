package pipeline

import (
	"context"
	"time"

	"github.com/user/drivecap/pkg/ports"
)

// =============================================================================
// Record Stage Types
// =============================================================================

// Stepper advances the simulation clock by one fixed step.
// ports.World satisfies it.
type Stepper interface {
	Tick(ctx context.Context) (uint64, error)
}

// FrameSource hands out the freshest captured frame, if one arrived since
// the previous call.
type FrameSource interface {
	TakeLatest() (*ports.Frame, bool)
}

// RecordInput contains parameters for the stepping loop.
type RecordInput struct {
	World    Stepper
	Source   FrameSource
	Stream   ports.EncodingStream
	FPS      int           // Target frame rate; the fixed step is 1/FPS seconds
	Duration time.Duration // Wall-clock recording budget
}

// RecordResult contains the outcome of the stepping loop.
type RecordResult struct {
	Ticks         int   // Clock advances performed
	FramesWritten int   // Frames forwarded to the encoder
	SkippedTicks  int   // Ticks with no frame available
	BytesWritten  int64 // Payload bytes forwarded to the encoder
	LastSeq       uint64

	Elapsed     time.Duration // Wall-clock time spent stepping
	Interrupted bool          // Stepping stopped because the context was cancelled
}

// RecordedSeconds returns the playback length of the written frames at fps.
func (r RecordResult) RecordedSeconds(fps int) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(r.FramesWritten) / float64(fps)
}
