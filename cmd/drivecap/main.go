// Package main provides the CLI entry point for drivecap.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ideamans/go-l10n"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/drivecap/pkg/adapters/ffmpegsink"
	"github.com/user/drivecap/pkg/adapters/filesink"
	"github.com/user/drivecap/pkg/adapters/logger"
	"github.com/user/drivecap/pkg/adapters/mp4probe"
	"github.com/user/drivecap/pkg/adapters/nullsink"
	"github.com/user/drivecap/pkg/adapters/osfilesystem"
	"github.com/user/drivecap/pkg/adapters/simbridge"
	"github.com/user/drivecap/pkg/adapters/synthetic"
	"github.com/user/drivecap/pkg/config"
	"github.com/user/drivecap/pkg/metrics"
	"github.com/user/drivecap/pkg/orchestrator"
	"github.com/user/drivecap/pkg/ports"
	"github.com/user/drivecap/pkg/stages/record"
	"github.com/user/drivecap/pkg/summarizer"
	"github.com/user/drivecap/pkg/tracing"
)

// CLI defines the command-line interface with subcommands.
type CLI struct {
	Record  RecordCmd  `cmd:"" default:"withargs" help:"Record a synchronized drive as MP4 video."`
	Probe   ProbeCmd   `cmd:"" help:"Inspect a recorded MP4 file."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// RecordCmd defines the record subcommand.
//
// Pointer fields are unset unless given by flag or environment, so they
// only override the config file when present.
type RecordCmd struct {
	Config string `short:"c" help:"YAML config file."`

	// Simulator
	Host      *string        `env:"CARLA_HOST" group:"Simulator" help:"Simulator host (default: 127.0.0.1)."`
	Port      *int           `env:"CARLA_PORT" group:"Simulator" help:"Simulator port (default: 2000)."`
	TMPort    *int           `name:"tm-port" env:"CARLA_TM_PORT" group:"Simulator" help:"Traffic manager port (default: 8000)."`
	Simulator *string        `env:"DRIVECAP_SIMULATOR" group:"Simulator" help:"Simulator kind: bridge or synthetic (default: bridge)."`
	Timeout   *time.Duration `group:"Simulator" help:"Simulator call timeout (default: 30s)."`

	// Output
	Output  *string `short:"o" env:"OUT_MP4" group:"Output" help:"Output MP4 file path (default: carla_drive.mp4)."`
	Summary string  `group:"Output" help:"Output session summary to file (Markdown format)."`

	// Camera and session
	Width    *int     `short:"W" env:"W" group:"Camera" help:"Frame width (default: 1280)."`
	Height   *int     `short:"H" env:"H" group:"Camera" help:"Frame height (default: 720)."`
	FPS      *int     `name:"fps" env:"FPS" group:"Camera" help:"Frame rate, also the fixed simulation step (default: 20)."`
	Duration *int     `short:"d" env:"DURATION_SECONDS" group:"Camera" help:"Recording duration in seconds (default: 30)."`
	FOV      *float64 `name:"fov" group:"Camera" help:"Horizontal field of view in degrees (default: 90)."`
	Vehicle  *string  `group:"Camera" help:"Vehicle blueprint (default: vehicle.tesla.model3)."`
	Seed     *int64   `group:"Camera" help:"Seed for spawn point order (default: time based)."`

	// Encoding
	FFmpeg *string `name:"ffmpeg" env:"FFMPEG_PATH" group:"Encoding" help:"Path to ffmpeg executable (default: search PATH)."`
	Preset *string `group:"Encoding" help:"x264 preset (default: veryfast)."`
	CRF    *int    `name:"crf" group:"Encoding" help:"x264 CRF value (0-51, lower is better)."`

	// Debug
	Debug      bool    `group:"Debug" help:"Save sampled frames and a session report."`
	DebugDir   *string `group:"Debug" help:"Directory for debug output (default: ./debug)."`
	DebugEvery *int    `group:"Debug" help:"Save every nth written frame (default: 20)."`

	// Observability
	MetricsAddr *string `env:"DRIVECAP_METRICS_ADDR" group:"Observability" help:"Serve Prometheus metrics on this address (e.g., :9090)."`
	TraceFile   *string `group:"Observability" help:"Write OpenTelemetry spans to this file."`
	LogLevel    *string `short:"l" group:"Logging" help:"Log level (debug, info, warn, error)."`
	LogFormat   *string `group:"Logging" help:"Log format (console, json)."`
	Quiet       bool    `short:"Q" group:"Logging" help:"Suppress all log output."`
}

// ProbeCmd defines the probe subcommand.
type ProbeCmd struct {
	Path string `arg:"" type:"existingfile" help:"MP4 file to inspect."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("drivecap"),
		kong.Description(l10n.T("Record synchronized driving simulation videos.")),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// Run executes the record command.
func (cmd *RecordCmd) Run() error {
	cfg, err := cmd.buildConfig()
	if err != nil {
		return err
	}

	log := newLogger(cfg, cmd.Quiet)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupted, finishing the recording...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Tracing
	if cfg.TraceFile != "" {
		shutdown, err := tracing.InitFile(ctx, cfg.TraceFile, "drivecap")
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer tracing.ShutdownWithTimeout(context.Background(), shutdown, log)
	}

	// Metrics
	collector, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, collector, log)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Create adapters
	fs := osfilesystem.New()
	encoder := ffmpegsink.New(cfg.Encoder.FFmpegPath, log)

	var simulator ports.Simulator
	switch cfg.Simulator.Kind {
	case config.SimulatorSynthetic:
		simulator = synthetic.New(synthetic.DefaultOptions(), log)
	default:
		simulator = simbridge.New(cfg.Simulator.Timeout, log)
	}

	// Create debug sink
	var sink ports.DebugSink
	if cfg.Debug {
		if err := fs.MkdirAll(cfg.DebugDir); err != nil {
			return fmt.Errorf("create debug directory: %w", err)
		}
		sink = filesink.New(cfg.DebugDir, fs)
	} else {
		sink = nullsink.New()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	recordStage := record.New(sink, log,
		record.WithMetrics(collector),
		record.WithDebugEvery(cfg.DebugEvery),
	)

	orch := orchestrator.New(
		simulator,
		encoder,
		recordStage,
		fs,
		sink,
		log,
		orchestrator.WithMetrics(collector),
		orchestrator.WithRand(rand.New(rand.NewSource(seed))),
		orchestrator.WithProbe(mp4probe.New()),
	)

	result, runErr := orch.Run(ctx, cfg.ToOrchestratorConfig())

	if cfg.Summary != "" && !orchestrator.IsSetupError(runErr) {
		writer := summarizer.NewWriter(summarizer.NewMarkdownFormatter(), fs)
		if err := writer.Write(cfg.Summary, buildSummary(cfg, result)); err != nil {
			log.Warn("Failed to write summary: %s", err)
		} else {
			log.Info("Summary saved to %s", cfg.Summary)
		}
	}

	if runErr != nil {
		return runErr
	}

	fmt.Println(l10n.F("Saved: %s", result.OutputPath))
	fmt.Println(l10n.F("Frames: %d  (~%.1fs at %d FPS)", result.FramesWritten, result.RecordedSeconds(), result.FPS))
	if result.Interrupted {
		log.Warn("Recording was interrupted before the configured duration elapsed.")
	}
	return nil
}

// buildConfig layers defaults, the config file and flag/env overrides.
func (cmd *RecordCmd) buildConfig() (config.Config, error) {
	cfg := config.Defaults()
	if cmd.Config != "" {
		loaded, err := config.LoadFromFile(cmd.Config)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	setString(&cfg.Simulator.Host, cmd.Host)
	setInt(&cfg.Simulator.Port, cmd.Port)
	setInt(&cfg.Simulator.TMPort, cmd.TMPort)
	setString(&cfg.Simulator.Kind, cmd.Simulator)
	if cmd.Timeout != nil {
		cfg.Simulator.Timeout = *cmd.Timeout
	}

	setString(&cfg.OutputPath, cmd.Output)
	if cmd.Summary != "" {
		cfg.Summary = cmd.Summary
	}

	setInt(&cfg.Width, cmd.Width)
	setInt(&cfg.Height, cmd.Height)
	setInt(&cfg.FPS, cmd.FPS)
	setInt(&cfg.DurationSeconds, cmd.Duration)
	if cmd.FOV != nil {
		cfg.FOV = *cmd.FOV
	}
	setString(&cfg.Vehicle, cmd.Vehicle)
	if cmd.Seed != nil {
		cfg.Seed = *cmd.Seed
	}

	setString(&cfg.Encoder.FFmpegPath, cmd.FFmpeg)
	setString(&cfg.Encoder.Preset, cmd.Preset)
	setInt(&cfg.Encoder.CRF, cmd.CRF)

	if cmd.Debug {
		cfg.Debug = true
	}
	setString(&cfg.DebugDir, cmd.DebugDir)
	setInt(&cfg.DebugEvery, cmd.DebugEvery)

	setString(&cfg.MetricsAddr, cmd.MetricsAddr)
	setString(&cfg.TraceFile, cmd.TraceFile)
	setString(&cfg.LogLevel, cmd.LogLevel)
	setString(&cfg.LogFormat, cmd.LogFormat)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func newLogger(cfg config.Config, quiet bool) ports.Logger {
	if quiet {
		return logger.NewNoop()
	}
	level := ports.ParseLogLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		return logger.NewStructured(level, os.Stderr)
	}
	return logger.NewConsole(level)
}

func serveMetrics(addr string, collector *metrics.Collector, log ports.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Metrics server exited: %s", err)
		}
	}()

	log.Info("Serving Prometheus metrics on %s", addr)
	return srv
}

func buildSummary(cfg config.Config, result orchestrator.RunResult) *summarizer.Summary {
	b := summarizer.NewBuilder().
		WithSession(result.SessionID).
		WithSimulator(summarizer.SimulatorInfo{
			Kind:   cfg.Simulator.Kind,
			Host:   cfg.Simulator.Host,
			Port:   cfg.Simulator.Port,
			TMPort: cfg.Simulator.TMPort,
		}).
		WithSettings(summarizer.Settings{
			Width:       cfg.Width,
			Height:      cfg.Height,
			FPS:         cfg.FPS,
			DurationSec: cfg.Duration().Seconds(),
			FOV:         cfg.FOV,
			Vehicle:     cfg.Vehicle,
			Preset:      cfg.Encoder.Preset,
			CRF:         cfg.Encoder.CRF,
		}).
		WithRecording(summarizer.RecordingInfo{
			Ticks:          result.Ticks,
			FramesWritten:  result.FramesWritten,
			SkippedTicks:   result.SkippedTicks,
			FramesCaptured: result.FramesCaptured,
			FramesRejected: result.FramesRejected,
			FramesDropped:  result.FramesDropped,
			ElapsedMs:      int(result.Elapsed.Milliseconds()),
			Interrupted:    result.Interrupted,
		})

	video := summarizer.VideoInfo{
		Path:     result.OutputPath,
		FileSize: result.FileSize,
	}
	if result.Video != nil {
		video.Codec = result.Video.Codec
		video.FrameCount = result.Video.FrameCount
		video.DurationMs = result.Video.DurationMs
		video.Width = result.Video.Width
		video.Height = result.Video.Height
	}
	b.WithVideo(video)

	for _, f := range result.TeardownFailures {
		b.WithTeardownFailure(f.Step, errors.New(f.Error))
	}
	return b.Build()
}

// Run executes the probe command.
func (cmd *ProbeCmd) Run() error {
	info, err := mp4probe.New().Probe(cmd.Path)
	if err != nil {
		return err
	}
	fmt.Println(l10n.F("Codec: %s", info.Codec))
	fmt.Println(l10n.F("Resolution: %dx%d", info.Width, info.Height))
	fmt.Println(l10n.F("Frames: %d", info.FrameCount))
	fmt.Println(l10n.F("Duration: %.1fs", float64(info.DurationMs)/1000))
	return nil
}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println(l10n.F("drivecap version %s", version))
	return nil
}
