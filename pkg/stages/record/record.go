// Package record implements the deterministic stepping loop.
package record

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/user/drivecap/pkg/metrics"
	"github.com/user/drivecap/pkg/pipeline"
	"github.com/user/drivecap/pkg/ports"
)

// State is the lifecycle state of a recording run.
type State int32

const (
	StateInitializing State = iota
	StateStepping
	StateDraining
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateStepping:
		return "STEPPING"
	case StateDraining:
		return "DRAINING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidInput is returned when the input lacks a collaborator or timing.
var ErrInvalidInput = errors.New("record: invalid input")

// Stage advances the simulation one fixed step at a time and forwards the
// freshest frame after every step to the encoder.
type Stage struct {
	clock      ports.Clock
	sink       ports.DebugSink
	logger     ports.Logger
	metrics    *metrics.Collector
	debugEvery int

	state atomic.Int32
}

// Option configures a Stage.
type Option func(*Stage)

// WithClock sets the wall clock that bounds the recording duration.
func WithClock(c ports.Clock) Option {
	return func(s *Stage) { s.clock = c }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Stage) { s.metrics = m }
}

// WithDebugEvery saves every nth written frame to the debug sink.
func WithDebugEvery(n int) Option {
	return func(s *Stage) { s.debugEvery = n }
}

// New creates a new record stage.
func New(sink ports.DebugSink, logger ports.Logger, opts ...Option) *Stage {
	s := &Stage{
		clock:      ports.SystemClock(),
		sink:       sink,
		logger:     logger.WithComponent("record"),
		debugEvery: 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state. Safe to call from any goroutine.
func (s *Stage) State() State {
	return State(s.state.Load())
}

func (s *Stage) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug("State %s", st)
}

// Execute runs STEPPING until the duration elapses, a step or write fails,
// or ctx is cancelled, then DRAINING closes the encoder stream. The stage
// always ends in TERMINATED. The returned result is valid even when err is
// non-nil.
func (s *Stage) Execute(ctx context.Context, input pipeline.RecordInput) (result pipeline.RecordResult, err error) {
	s.setState(StateInitializing)
	defer s.setState(StateTerminated)

	if input.World == nil || input.Source == nil || input.Stream == nil || input.FPS <= 0 || input.Duration <= 0 {
		return result, fmt.Errorf("%w: world=%t source=%t stream=%t fps=%d duration=%s", ErrInvalidInput,
			input.World != nil, input.Source != nil, input.Stream != nil, input.FPS, input.Duration)
	}

	s.setState(StateStepping)
	s.logger.Debug("Stepping for %s at %d fps", input.Duration, input.FPS)

	start := s.clock.Now()
	result, err = s.step(ctx, input, start)
	result.Elapsed = s.clock.Now().Sub(start)

	s.setState(StateDraining)
	if closeErr := input.Stream.Close(); closeErr != nil {
		closeErr = fmt.Errorf("close encoder: %w", closeErr)
		if err == nil {
			err = closeErr
		} else {
			err = errors.Join(err, closeErr)
		}
	}

	s.logger.Debug("Stepped %d ticks, wrote %d frames, skipped %d", result.Ticks, result.FramesWritten, result.SkippedTicks)
	return result, err
}

func (s *Stage) step(ctx context.Context, input pipeline.RecordInput, start time.Time) (pipeline.RecordResult, error) {
	var result pipeline.RecordResult

	for s.clock.Now().Sub(start) < input.Duration {
		if ctx.Err() != nil {
			result.Interrupted = true
			s.logger.Debug("Interrupted after %d ticks", result.Ticks)
			return result, nil
		}

		tickStart := s.clock.Now()
		if _, err := input.World.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				result.Interrupted = true
				return result, nil
			}
			return result, fmt.Errorf("tick %d: %w", result.Ticks+1, err)
		}
		result.Ticks++
		s.metrics.TickDone(s.clock.Now().Sub(tickStart))

		frame, ok := input.Source.TakeLatest()
		if !ok {
			result.SkippedTicks++
			s.metrics.TickSkipped()
		} else {
			writeStart := s.clock.Now()
			if err := input.Stream.WriteFrame(frame.Data); err != nil {
				return result, fmt.Errorf("write frame %d: %w", result.FramesWritten+1, err)
			}
			s.metrics.FrameWritten(len(frame.Data), s.clock.Now().Sub(writeStart))
			result.FramesWritten++
			result.BytesWritten += int64(len(frame.Data))
			result.LastSeq = frame.Seq

			if s.sink.Enabled() && s.debugEvery > 0 && (result.FramesWritten-1)%s.debugEvery == 0 {
				if err := s.sink.SaveFrame(result.FramesWritten-1, frame); err != nil {
					s.logger.Warn("Failed to save debug frame: %s", err)
				}
			}
		}

		if result.Ticks%input.FPS == 0 {
			s.logger.Debug("%d s simulated, %d frames written", result.Ticks/input.FPS, result.FramesWritten)
		}
	}

	return result, nil
}

var _ pipeline.Stage[pipeline.RecordInput, pipeline.RecordResult] = (*Stage)(nil)
