// Package orchestrator runs a complete recording session.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/drivecap/pkg/capture"
	"github.com/user/drivecap/pkg/framebuffer"
	"github.com/user/drivecap/pkg/metrics"
	"github.com/user/drivecap/pkg/pipeline"
	"github.com/user/drivecap/pkg/ports"
	"github.com/user/drivecap/pkg/session"
	"github.com/user/drivecap/pkg/tracing"
)

// Config contains all configuration for the orchestrator.
type Config struct {
	// Simulator
	Host   string
	Port   int
	TMPort int

	// Output
	OutputPath string

	// Camera
	Width           int
	Height          int
	FPS             int
	FOV             float64
	CameraTransform ports.Transform

	// Session
	Duration         time.Duration
	VehicleBlueprint string

	// Encoding
	Preset string
	CRF    int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	rig := session.DefaultConfig()
	return Config{
		Host:   "127.0.0.1",
		Port:   2000,
		TMPort: 8000,

		OutputPath: "carla_drive.mp4",

		Width:           1280,
		Height:          720,
		FPS:             20,
		FOV:             90,
		CameraTransform: rig.CameraTransform,

		Duration:         30 * time.Second,
		VehicleBlueprint: rig.VehicleBlueprint,

		Preset: "veryfast",
	}
}

// Orchestrator connects to the simulator, sets up a session, records and
// tears the session down.
type Orchestrator struct {
	simulator   ports.Simulator
	encoder     ports.EncodingSink
	recordStage pipeline.Stage[pipeline.RecordInput, pipeline.RecordResult]
	probe       ports.OutputProbe
	fs          ports.FileSystem
	sink        ports.DebugSink
	logger      ports.Logger
	metrics     *metrics.Collector
	tracer      trace.Tracer
	rand        *rand.Rand
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer used for session spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithRand sets the source used to shuffle spawn points.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rand = r }
}

// WithProbe sets the probe used to verify the output file.
func WithProbe(p ports.OutputProbe) Option {
	return func(o *Orchestrator) { o.probe = p }
}

// New creates a new Orchestrator.
func New(
	simulator ports.Simulator,
	encoder ports.EncodingSink,
	recordStage pipeline.Stage[pipeline.RecordInput, pipeline.RecordResult],
	fs ports.FileSystem,
	sink ports.DebugSink,
	logger ports.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		simulator:   simulator,
		encoder:     encoder,
		recordStage: recordStage,
		fs:          fs,
		sink:        sink,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = tracing.Tracer()
	}
	if o.rand == nil {
		o.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// Run executes one recording session. The returned RunResult is filled as
// far as the session got, also when an error is returned. Cancelling ctx
// stops recording gracefully: the output is finalized, teardown runs and
// the result is marked interrupted.
func (o *Orchestrator) Run(ctx context.Context, config Config) (result RunResult, err error) {
	result = RunResult{
		SessionID:  uuid.NewString(),
		OutputPath: config.OutputPath,
		FPS:        config.FPS,
		Width:      config.Width,
		Height:     config.Height,
	}

	ctx, span := o.tracer.Start(ctx, "session", trace.WithAttributes(
		attribute.String("session.id", result.SessionID),
		attribute.String("output.path", config.OutputPath),
		attribute.Int("camera.width", config.Width),
		attribute.Int("camera.height", config.Height),
		attribute.Int("camera.fps", config.FPS),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("frames.written", result.FramesWritten),
			attribute.Bool("interrupted", result.Interrupted),
		)
		tracing.End(span, err)
	}()

	o.logger.Info("Connecting to simulator at %s:%d", config.Host, config.Port)
	world, err := o.connect(ctx, config)
	if err != nil {
		o.logger.Error("Failed to connect: %s", err)
		o.metrics.SessionFinished("connect_failed")
		return result, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if cerr := world.Close(); cerr != nil {
			o.logger.Warn("Failed to close simulator connection: %s", cerr)
		}
	}()

	buf := framebuffer.New()
	adapter := capture.New(buf, config.Width, config.Height, o.logger, o.metrics)

	sess, err := o.setup(ctx, world, config, adapter.OnImage)
	if err != nil {
		o.logger.Error("Setup failed: %s", err)
		o.metrics.SessionFinished("setup_failed")
		return result, err
	}
	result.SpawnAttempts = sess.SpawnAttempts()
	o.logger.Info("Recording %s at %dx%d, %d FPS", config.Duration, config.Width, config.Height, config.FPS)

	record, recErr := o.record(ctx, world, buf, sess, config)

	report := o.teardown(ctx, sess)
	for _, step := range session.Failed(report) {
		result.TeardownFailures = append(result.TeardownFailures, StepFailure{Step: step.Name, Error: step.Err.Error()})
	}

	stats := buf.Stats()
	result.Ticks = record.Ticks
	result.FramesWritten = record.FramesWritten
	result.SkippedTicks = record.SkippedTicks
	result.BytesWritten = record.BytesWritten
	result.Elapsed = record.Elapsed
	result.Interrupted = record.Interrupted
	result.FramesCaptured = adapter.Captured()
	result.FramesRejected = adapter.Rejected()
	result.FramesDropped = stats.Drops

	if recErr != nil {
		o.logger.Error("Recording failed: %s", recErr)
		o.metrics.SessionFinished("failed")
		o.saveSessionJSON(result)
		return result, fmt.Errorf("record: %w", recErr)
	}

	if result.Interrupted {
		o.logger.Warn("Interrupted after %d frames, output finalized", result.FramesWritten)
		o.metrics.SessionFinished("interrupted")
	} else {
		o.metrics.SessionFinished("completed")
	}

	o.inspectOutput(config.OutputPath, &result)
	o.saveSessionJSON(result)

	o.logger.Info("Recording completed: %d frames in %d ticks", result.FramesWritten, result.Ticks)
	return result, nil
}

func (o *Orchestrator) connect(ctx context.Context, config Config) (world ports.World, err error) {
	ctx, span := o.tracer.Start(ctx, "connect", trace.WithAttributes(
		attribute.String("simulator.host", config.Host),
		attribute.Int("simulator.port", config.Port),
	))
	defer func() { tracing.End(span, err) }()

	return o.simulator.Connect(ctx, config.Host, config.Port)
}

func (o *Orchestrator) setup(ctx context.Context, world ports.World, config Config, onImage func(ports.RawImage)) (sess *session.Session, err error) {
	ctx, span := o.tracer.Start(ctx, "setup")
	defer func() { tracing.End(span, err) }()

	mgr := session.NewManager(world, o.encoder, o.logger,
		session.WithRand(o.rand),
		session.WithMetrics(o.metrics),
	)
	return mgr.Setup(ctx, o.sessionConfig(config), onImage)
}

func (o *Orchestrator) record(ctx context.Context, world ports.World, buf *framebuffer.Buffer, sess *session.Session, config Config) (result pipeline.RecordResult, err error) {
	ctx, span := o.tracer.Start(ctx, "record", trace.WithAttributes(
		attribute.Float64("duration.seconds", config.Duration.Seconds()),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("ticks", result.Ticks),
			attribute.Int("frames.written", result.FramesWritten),
			attribute.Int("ticks.skipped", result.SkippedTicks),
		)
		tracing.End(span, err)
	}()

	return o.recordStage.Execute(ctx, pipeline.RecordInput{
		World:    world,
		Source:   buf,
		Stream:   sess.Stream(),
		FPS:      config.FPS,
		Duration: config.Duration,
	})
}

func (o *Orchestrator) teardown(ctx context.Context, sess *session.Session) []session.StepResult {
	_, span := o.tracer.Start(ctx, "teardown")
	report := sess.Teardown(ctx)
	failed := session.Failed(report)
	span.SetAttributes(attribute.Int("steps.failed", len(failed)))
	if len(failed) > 0 {
		tracing.End(span, fmt.Errorf("%d teardown steps failed", len(failed)))
	} else {
		span.End()
	}
	return report
}

func (o *Orchestrator) sessionConfig(config Config) session.Config {
	cfg := session.DefaultConfig()
	cfg.Width = config.Width
	cfg.Height = config.Height
	cfg.FPS = config.FPS
	if config.FOV > 0 {
		cfg.FOV = config.FOV
	}
	if config.VehicleBlueprint != "" {
		cfg.VehicleBlueprint = config.VehicleBlueprint
	}
	if config.CameraTransform != (ports.Transform{}) {
		cfg.CameraTransform = config.CameraTransform
	}
	cfg.TMPort = config.TMPort
	cfg.Encoder = ports.SinkConfig{
		PixelFormat:  "bgr24",
		OutputPath:   config.OutputPath,
		Codec:        "libx264",
		Preset:       config.Preset,
		CRF:          config.CRF,
		OutputFormat: "yuv420p",
	}
	return cfg
}

func (o *Orchestrator) inspectOutput(path string, result *RunResult) {
	if size, err := o.fs.Size(path); err == nil {
		result.FileSize = size
	} else {
		o.logger.Warn("Failed to stat output: %s", err)
	}

	if o.probe == nil {
		return
	}
	info, err := o.probe.Probe(path)
	if err != nil {
		o.logger.Warn("Failed to probe output: %s", err)
		return
	}
	result.Video = info
	if info.FrameCount != result.FramesWritten {
		o.logger.Warn("Container holds %d frames, %d were written", info.FrameCount, result.FramesWritten)
	}
}

func (o *Orchestrator) saveSessionJSON(result RunResult) {
	if !o.sink.Enabled() {
		return
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err == nil {
		err = o.sink.SaveSessionJSON(data)
	}
	if err != nil {
		o.logger.Warn("Failed to save session report: %s", err)
	}
}

// IsSetupError reports whether err is a session setup failure.
func IsSetupError(err error) bool {
	var setupErr *session.SetupError
	return errors.As(err, &setupErr)
}

// RunResult contains the results of a session for reporting.
type RunResult struct {
	SessionID  string `json:"session_id"`
	OutputPath string `json:"output_path"`
	FPS        int    `json:"fps"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`

	// Stepping loop
	Ticks         int           `json:"ticks"`
	FramesWritten int           `json:"frames_written"`
	SkippedTicks  int           `json:"skipped_ticks"`
	BytesWritten  int64         `json:"bytes_written"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	Interrupted   bool          `json:"interrupted"`

	// Capture side
	FramesCaptured uint64 `json:"frames_captured"`
	FramesRejected uint64 `json:"frames_rejected"`
	FramesDropped  uint64 `json:"frames_dropped"`

	SpawnAttempts    int           `json:"spawn_attempts"`
	TeardownFailures []StepFailure `json:"teardown_failures,omitempty"`

	// Output file, when it could be inspected
	FileSize int64            `json:"file_size,omitempty"`
	Video    *ports.VideoInfo `json:"video,omitempty"`
}

// StepFailure is a teardown step that reported an error.
type StepFailure struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// RecordedSeconds returns the playback length of the written frames.
func (r RunResult) RecordedSeconds() float64 {
	return pipeline.RecordResult{FramesWritten: r.FramesWritten}.RecordedSeconds(r.FPS)
}
