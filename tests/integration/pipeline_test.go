// Package integration contains integration tests for the drivecap pipeline.
package integration

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/drivecap/pkg/adapters/ffmpegsink"
	"github.com/user/drivecap/pkg/adapters/logger"
	"github.com/user/drivecap/pkg/adapters/mp4probe"
	"github.com/user/drivecap/pkg/adapters/nullsink"
	"github.com/user/drivecap/pkg/adapters/osfilesystem"
	"github.com/user/drivecap/pkg/adapters/synthetic"
	"github.com/user/drivecap/pkg/mocks"
	"github.com/user/drivecap/pkg/orchestrator"
	"github.com/user/drivecap/pkg/ports"
	"github.com/user/drivecap/pkg/stages/record"
)

// steppedSimulator connects to a synthetic world whose Tick also advances
// clock by one fixed step, so recordings last exactly D*R ticks. Closing the
// world is left to the test so it can be inspected after the session.
type steppedSimulator struct {
	t     *testing.T
	sim   ports.Simulator
	clock *mocks.Clock
	step  time.Duration

	world *synthetic.World
}

func (s *steppedSimulator) Connect(ctx context.Context, host string, port int) (ports.World, error) {
	w, err := s.sim.Connect(ctx, host, port)
	if err != nil {
		return nil, err
	}
	s.world = w.(*synthetic.World)
	s.t.Cleanup(func() { _ = s.world.Close() })
	return &steppedWorld{World: w, clock: s.clock, step: s.step}, nil
}

type steppedWorld struct {
	ports.World
	clock *mocks.Clock
	step  time.Duration
}

func (w *steppedWorld) Tick(ctx context.Context) (uint64, error) {
	w.clock.Advance(w.step)
	return w.World.Tick(ctx)
}

func (w *steppedWorld) Close() error {
	return nil
}

func newConfig(output string) orchestrator.Config {
	config := orchestrator.DefaultConfig()
	config.OutputPath = output
	config.Width = 64
	config.Height = 48
	config.FPS = 10
	config.Duration = 5 * time.Second
	return config
}

func run(t *testing.T, opts synthetic.Options, enc ports.EncodingSink, config orchestrator.Config) (orchestrator.RunResult, *synthetic.World) {
	t.Helper()

	clock := mocks.NewClock()
	sim := &steppedSimulator{
		t:     t,
		sim:   synthetic.New(opts, logger.NewNoop()),
		clock: clock,
		step:  time.Second / time.Duration(config.FPS),
	}
	stage := record.New(nullsink.New(), logger.NewNoop(), record.WithClock(clock))
	orch := orchestrator.New(sim, enc, stage, osfilesystem.New(), nullsink.New(), logger.NewNoop(),
		orchestrator.WithRand(rand.New(rand.NewSource(7))),
		orchestrator.WithProbe(mp4probe.New()),
	)

	result, err := orch.Run(context.Background(), config)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return result, sim.world
}

// TestSyntheticSession_EveryTick runs the full session against the synthetic
// world with an in-memory encoder.
func TestSyntheticSession_EveryTick(t *testing.T) {
	enc := &mocks.EncodingSink{}
	result, world := run(t, synthetic.DefaultOptions(), enc, newConfig(filepath.Join(t.TempDir(), "out.mp4")))

	if result.Ticks != 50 {
		t.Errorf("expected 50 ticks, got %d", result.Ticks)
	}
	if result.FramesWritten != 50 {
		t.Errorf("expected 50 frames, got %d", result.FramesWritten)
	}
	if got := result.RecordedSeconds(); got != 5.0 {
		t.Errorf("expected 5.0 s, got %v", got)
	}
	if enc.Stream.FrameCount() != 50 {
		t.Errorf("expected 50 encoded frames, got %d", enc.Stream.FrameCount())
	}
	for i, f := range enc.Stream.Frames {
		if len(f) != 64*48*3 {
			t.Fatalf("frame %d: expected %d bytes, got %d", i, 64*48*3, len(f))
		}
	}

	settings, err := world.Settings(context.Background())
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if settings != (ports.ClockSettings{}) {
		t.Errorf("expected default settings restored, got %+v", settings)
	}
	if world.TrafficManagerSync(8000) {
		t.Error("expected traffic manager sync restored")
	}
}

// TestSyntheticSession_SkippedDeliveries drops every third image.
func TestSyntheticSession_SkippedDeliveries(t *testing.T) {
	opts := synthetic.DefaultOptions()
	opts.DropEvery = 3
	enc := &mocks.EncodingSink{}

	result, _ := run(t, opts, enc, newConfig(filepath.Join(t.TempDir(), "out.mp4")))

	if result.Ticks != 50 {
		t.Errorf("expected 50 ticks, got %d", result.Ticks)
	}
	if result.FramesWritten != 34 {
		t.Errorf("expected 34 frames, got %d", result.FramesWritten)
	}
	if result.SkippedTicks != 16 {
		t.Errorf("expected 16 skipped ticks, got %d", result.SkippedTicks)
	}
	if result.FramesDropped != 0 {
		t.Errorf("expected no superseded frames, got %d", result.FramesDropped)
	}
}

// TestSyntheticSession_FFmpeg encodes a real MP4 and probes it.
func TestSyntheticSession_FFmpeg(t *testing.T) {
	ffmpeg, err := ffmpegsink.FindFFmpeg()
	if err != nil {
		t.Skip("ffmpeg not available")
	}

	output := filepath.Join(t.TempDir(), "drive.mp4")
	config := newConfig(output)
	config.Duration = 2 * time.Second

	result, _ := run(t, synthetic.DefaultOptions(), ffmpegsink.New(ffmpeg, logger.NewNoop()), config)

	info, err := os.Stat(output)
	if err != nil {
		t.Fatalf("output not found: %v", err)
	}
	if result.FileSize != info.Size() {
		t.Errorf("expected file size %d, got %d", info.Size(), result.FileSize)
	}
	if result.Video == nil {
		t.Fatal("expected probed video info")
	}
	if result.Video.Codec != mp4probe.CodecH264 {
		t.Errorf("expected h264, got %s", result.Video.Codec)
	}
	if result.Video.FrameCount != result.FramesWritten {
		t.Errorf("expected %d frames in container, got %d", result.FramesWritten, result.Video.FrameCount)
	}
	if result.Video.Width != 64 || result.Video.Height != 48 {
		t.Errorf("expected 64x48, got %dx%d", result.Video.Width, result.Video.Height)
	}
}

// TestSyntheticSession_AllSpawnPointsBlocked fails setup without starting
// the encoder.
func TestSyntheticSession_AllSpawnPointsBlocked(t *testing.T) {
	opts := synthetic.DefaultOptions()
	opts.SpawnPoints = 3
	opts.Blocked = []int{0, 1, 2}

	enc := &mocks.EncodingSink{}
	clock := mocks.NewClock()
	sim := &steppedSimulator{t: t, sim: synthetic.New(opts, logger.NewNoop()), clock: clock, step: 100 * time.Millisecond}
	stage := record.New(nullsink.New(), logger.NewNoop(), record.WithClock(clock))
	orch := orchestrator.New(sim, enc, stage, osfilesystem.New(), nullsink.New(), logger.NewNoop())

	_, err := orch.Run(context.Background(), newConfig(filepath.Join(t.TempDir(), "out.mp4")))
	if !orchestrator.IsSetupError(err) {
		t.Fatalf("expected setup error, got %v", err)
	}
	if enc.StartCalled {
		t.Error("encoder must not start when no vehicle spawned")
	}

	settings, _ := sim.world.Settings(context.Background())
	if settings != (ports.ClockSettings{}) {
		t.Errorf("expected default settings restored, got %+v", settings)
	}
}
