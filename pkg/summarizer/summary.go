// Package summarizer provides summary generation for recording results.
package summarizer

import "time"

// Summary contains all data collected during a recording session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time
	SessionID   string

	// Simulator connection
	Simulator SimulatorInfo

	// Recording settings
	Settings Settings

	// Stepping loop results
	Recording RecordingInfo

	// Video output details
	Video VideoInfo

	// Teardown steps that failed
	TeardownFailures []TeardownFailure
}

// SimulatorInfo describes the simulator the session ran against.
type SimulatorInfo struct {
	Kind   string // "bridge" or "synthetic"
	Host   string
	Port   int
	TMPort int
}

// Settings contains the recording configuration.
type Settings struct {
	Width       int
	Height      int
	FPS         int
	DurationSec float64
	FOV         float64
	Vehicle     string
	Preset      string
	CRF         int // 0 = encoder default
}

// RecordingInfo contains the stepping loop counters.
type RecordingInfo struct {
	Ticks          int
	FramesWritten  int
	SkippedTicks   int
	FramesCaptured uint64
	FramesRejected uint64
	FramesDropped  uint64
	ElapsedMs      int
	Interrupted    bool
}

// VideoInfo contains information about the output video.
type VideoInfo struct {
	Path       string
	Codec      string
	FrameCount int
	DurationMs int
	FileSize   int64
	Width      int
	Height     int
}

// TeardownFailure is a teardown step that reported an error.
type TeardownFailure struct {
	Step  string
	Error string
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSession sets the session ID.
func (b *Builder) WithSession(id string) *Builder {
	b.summary.SessionID = id
	return b
}

// WithSimulator sets simulator information.
func (b *Builder) WithSimulator(info SimulatorInfo) *Builder {
	b.summary.Simulator = info
	return b
}

// WithSettings sets recording settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithRecording sets stepping loop results.
func (b *Builder) WithRecording(rec RecordingInfo) *Builder {
	b.summary.Recording = rec
	return b
}

// WithVideo sets video output information.
func (b *Builder) WithVideo(video VideoInfo) *Builder {
	b.summary.Video = video
	return b
}

// WithTeardownFailure records a failed teardown step.
func (b *Builder) WithTeardownFailure(step string, err error) *Builder {
	b.summary.TeardownFailures = append(b.summary.TeardownFailures, TeardownFailure{Step: step, Error: err.Error()})
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}

// RecordedSeconds returns the playback length of the written frames.
func (s *Summary) RecordedSeconds() float64 {
	if s.Settings.FPS <= 0 {
		return 0
	}
	return float64(s.Recording.FramesWritten) / float64(s.Settings.FPS)
}
