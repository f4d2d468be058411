// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/drivecap/pkg/orchestrator"
	"github.com/user/drivecap/pkg/ports"
)

// Simulator kinds.
const (
	SimulatorBridge    = "bridge"
	SimulatorSynthetic = "synthetic"
)

// ErrInvalid is returned by Validate when a setting is out of range.
var ErrInvalid = errors.New("config: invalid setting")

// Config represents the full configuration for drivecap.
type Config struct {
	// Simulator
	Simulator SimulatorConfig `yaml:"simulator"`

	// Output
	OutputPath string `yaml:"output"`
	Summary    string `yaml:"summary"`

	// Camera
	Width  int             `yaml:"width"`
	Height int             `yaml:"height"`
	FPS    int             `yaml:"fps"`
	FOV    float64         `yaml:"fov"`
	Camera TransformConfig `yaml:"camera"`

	// Session
	DurationSeconds int    `yaml:"duration_seconds"`
	Vehicle         string `yaml:"vehicle"`
	Seed            int64  `yaml:"seed"` // 0 = time based

	// Encoding
	Encoder EncoderConfig `yaml:"encoder"`

	// Debug
	Debug      bool   `yaml:"debug"`
	DebugDir   string `yaml:"debug_dir"`
	DebugEvery int    `yaml:"debug_every"`

	// Observability
	MetricsAddr string `yaml:"metrics_addr"`
	TraceFile   string `yaml:"trace_file"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// SimulatorConfig selects and addresses the simulator.
type SimulatorConfig struct {
	Kind    string        `yaml:"kind"`
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	TMPort  int           `yaml:"tm_port"`
	Timeout time.Duration `yaml:"timeout"`
}

// TransformConfig places the camera relative to the vehicle.
type TransformConfig struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
	Pitch float64 `yaml:"pitch"`
	Yaw   float64 `yaml:"yaw"`
	Roll  float64 `yaml:"roll"`
}

// EncoderConfig represents ffmpeg settings.
type EncoderConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"` // empty = search PATH
	Preset     string `yaml:"preset"`
	CRF        int    `yaml:"crf"` // 0 = encoder default
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Simulator: SimulatorConfig{
			Kind:    SimulatorBridge,
			Host:    "127.0.0.1",
			Port:    2000,
			TMPort:  8000,
			Timeout: 30 * time.Second,
		},

		OutputPath: "carla_drive.mp4",

		Width:  1280,
		Height: 720,
		FPS:    20,
		FOV:    90,
		Camera: TransformConfig{X: -7, Z: 3, Pitch: -15},

		DurationSeconds: 30,
		Vehicle:         "vehicle.tesla.model3",

		Encoder: EncoderConfig{
			Preset: "veryfast",
		},

		DebugDir:   "./debug",
		DebugEvery: 20,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// LoadFromFile loads configuration from a YAML file on top of Defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks value ranges. All problems are reported together.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	switch c.Simulator.Kind {
	case SimulatorBridge, SimulatorSynthetic:
	default:
		invalid("simulator kind %q (want %s or %s)", c.Simulator.Kind, SimulatorBridge, SimulatorSynthetic)
	}
	if c.Simulator.Port < 1 || c.Simulator.Port > 65535 {
		invalid("port %d out of range 1..65535", c.Simulator.Port)
	}
	if c.Simulator.TMPort < 1 || c.Simulator.TMPort > 65535 {
		invalid("traffic manager port %d out of range 1..65535", c.Simulator.TMPort)
	}
	if c.OutputPath == "" {
		invalid("output path is empty")
	}
	if c.Width <= 0 || c.Height <= 0 {
		invalid("size %dx%d must be positive", c.Width, c.Height)
	} else if c.Width%2 != 0 || c.Height%2 != 0 {
		invalid("size %dx%d must be even for yuv420p", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		invalid("fps %d must be positive", c.FPS)
	}
	if c.DurationSeconds <= 0 {
		invalid("duration %d s must be positive", c.DurationSeconds)
	}
	if c.FOV <= 0 || c.FOV >= 180 {
		invalid("fov %g out of range (0, 180)", c.FOV)
	}
	if c.Encoder.CRF < 0 || c.Encoder.CRF > 51 {
		invalid("crf %d out of range 0..51", c.Encoder.CRF)
	}
	if c.DebugEvery <= 0 {
		invalid("debug interval %d must be positive", c.DebugEvery)
	}

	return errors.Join(errs...)
}

// Duration returns the recording budget.
func (c Config) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// ToOrchestratorConfig converts Config to orchestrator.Config.
func (c Config) ToOrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Host:   c.Simulator.Host,
		Port:   c.Simulator.Port,
		TMPort: c.Simulator.TMPort,

		OutputPath: c.OutputPath,

		Width:  c.Width,
		Height: c.Height,
		FPS:    c.FPS,
		FOV:    c.FOV,
		CameraTransform: ports.Transform{
			Location: ports.Location{X: c.Camera.X, Y: c.Camera.Y, Z: c.Camera.Z},
			Rotation: ports.Rotation{Pitch: c.Camera.Pitch, Yaw: c.Camera.Yaw, Roll: c.Camera.Roll},
		},

		Duration:         c.Duration(),
		VehicleBlueprint: c.Vehicle,

		Preset: c.Encoder.Preset,
		CRF:    c.Encoder.CRF,
	}
}
