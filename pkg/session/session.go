// Package session acquires and releases the simulator resources of a
// recording: clock settings, the ego vehicle, the camera and the encoder.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/user/drivecap/pkg/metrics"
	"github.com/user/drivecap/pkg/ports"
)

// ErrNoSpawnPoint is returned when every spawn point is blocked.
var ErrNoSpawnPoint = errors.New("session: no free spawn point")

// Setup step names, in execution order.
const (
	StepSnapshotSettings = "snapshot settings"
	StepApplySettings    = "apply settings"
	StepTrafficManager   = "traffic manager sync"
	StepSpawnPoints      = "spawn points"
	StepSpawnVehicle     = "spawn vehicle"
	StepAutopilot        = "autopilot"
	StepSpawnCamera      = "spawn camera"
	StepListen           = "listen"
	StepStartEncoder     = "start encoder"
)

// Teardown step names, in execution order.
const (
	StepCloseEncoder    = "close encoder"
	StepStopListening   = "stop listening"
	StepDestroyCamera   = "destroy camera"
	StepDestroyVehicle  = "destroy vehicle"
	StepRestoreSettings = "restore settings"
	StepRestoreTraffic  = "restore traffic manager"
)

// SetupError reports the setup step that failed.
type SetupError struct {
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("session setup: %s: %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// StepResult is the outcome of one teardown step.
type StepResult struct {
	Name string
	Err  error
}

// Config describes the resources a session acquires.
type Config struct {
	Width  int
	Height int
	FPS    int
	FOV    float64

	VehicleBlueprint string
	CameraBlueprint  string
	CameraTransform  ports.Transform
	TMPort           int

	// Encoder is passed to the encoding sink; its size and rate are taken
	// from Width, Height and FPS.
	Encoder ports.SinkConfig
}

// DefaultConfig returns the camera rig used by default: a 90 degree chase
// camera 7 m behind and 3 m above the vehicle, pitched down 15 degrees.
func DefaultConfig() Config {
	return Config{
		Width:            1280,
		Height:           720,
		FPS:              20,
		FOV:              90,
		VehicleBlueprint: "vehicle.tesla.model3",
		CameraBlueprint:  "sensor.camera.rgb",
		CameraTransform: ports.Transform{
			Location: ports.Location{X: -7, Z: 3},
			Rotation: ports.Rotation{Pitch: -15},
		},
		TMPort: 8000,
	}
}

// cameraSpec returns the camera blueprint with resolution, field of view
// and sensor tick set.
func (cfg Config) cameraSpec() ports.Blueprint {
	return ports.Blueprint{
		ID: cfg.CameraBlueprint,
		Attributes: map[string]string{
			"image_size_x": strconv.Itoa(cfg.Width),
			"image_size_y": strconv.Itoa(cfg.Height),
			"fov":          strconv.FormatFloat(cfg.FOV, 'g', -1, 64),
			"sensor_tick":  strconv.FormatFloat(1/float64(cfg.FPS), 'g', -1, 64),
		},
	}
}

// Manager sets up sessions on a world.
type Manager struct {
	world   ports.World
	sink    ports.EncodingSink
	logger  ports.Logger
	metrics *metrics.Collector
	rand    *rand.Rand
}

// Option configures a Manager.
type Option func(*Manager)

// WithRand sets the source used to shuffle spawn points.
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) { m.rand = r }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// NewManager creates a Manager.
func NewManager(world ports.World, sink ports.EncodingSink, logger ports.Logger, opts ...Option) *Manager {
	m := &Manager{
		world:  world,
		sink:   sink,
		logger: logger.WithComponent("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rand == nil {
		m.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return m
}

// Session owns the resources acquired by Setup.
type Session struct {
	world   ports.World
	logger  ports.Logger
	metrics *metrics.Collector
	tmPort  int

	prior     ports.ClockSettings
	hasPrior  bool
	vehicle   *ports.Actor
	camera    *ports.Actor
	listening bool
	stream    ports.EncodingStream
	attempts  int

	once   sync.Once
	report []StepResult
}

// Setup runs the setup steps in order. onImage is registered as the camera
// callback. On failure everything acquired so far is released before the
// *SetupError is returned.
func (m *Manager) Setup(ctx context.Context, cfg Config, onImage func(ports.RawImage)) (*Session, error) {
	if cfg.FPS <= 0 {
		return nil, &SetupError{Step: StepApplySettings, Err: fmt.Errorf("invalid fps %d", cfg.FPS)}
	}

	s := &Session{
		world:   m.world,
		logger:  m.logger,
		metrics: m.metrics,
		tmPort:  cfg.TMPort,
	}

	if err := m.setup(ctx, s, cfg, onImage); err != nil {
		s.Teardown(ctx)
		return nil, err
	}
	return s, nil
}

func (m *Manager) setup(ctx context.Context, s *Session, cfg Config, onImage func(ports.RawImage)) error {
	prior, err := m.world.Settings(ctx)
	if err != nil {
		return &SetupError{Step: StepSnapshotSettings, Err: err}
	}
	s.prior = prior
	s.hasPrior = true
	m.logger.Debug("Previous settings: synchronous=%t fixed_delta=%g", prior.SynchronousMode, prior.FixedDeltaSeconds)

	fixed := ports.ClockSettings{SynchronousMode: true, FixedDeltaSeconds: 1 / float64(cfg.FPS)}
	if err := m.world.ApplySettings(ctx, fixed); err != nil {
		return &SetupError{Step: StepApplySettings, Err: err}
	}
	if err := m.world.SetTrafficManagerSync(ctx, cfg.TMPort, true); err != nil {
		return &SetupError{Step: StepTrafficManager, Err: err}
	}

	m.removeStaleCameras(ctx, cfg.CameraBlueprint)

	vehicle, err := m.spawnVehicle(ctx, s, cfg.VehicleBlueprint)
	if err != nil {
		return err
	}
	s.vehicle = &vehicle
	m.logger.Debug("Spawned vehicle %d after %d attempts", vehicle.ID, s.attempts)

	if err := m.world.SetAutopilot(ctx, vehicle.ID, true, cfg.TMPort); err != nil {
		return &SetupError{Step: StepAutopilot, Err: err}
	}

	camera, err := m.world.SpawnActor(ctx, cfg.cameraSpec(), cfg.CameraTransform, vehicle.ID)
	if err != nil {
		return &SetupError{Step: StepSpawnCamera, Err: err}
	}
	s.camera = &camera
	m.logger.Debug("Spawned camera %d", camera.ID)

	if err := m.world.Listen(ctx, camera.ID, onImage); err != nil {
		return &SetupError{Step: StepListen, Err: err}
	}
	s.listening = true

	enc := cfg.Encoder
	enc.Width, enc.Height, enc.FPS = cfg.Width, cfg.Height, cfg.FPS
	stream, err := m.sink.Start(ctx, enc)
	if err != nil {
		return &SetupError{Step: StepStartEncoder, Err: err}
	}
	s.stream = stream

	return nil
}

// removeStaleCameras destroys cameras left over from previous runs.
// Failures are ignored.
func (m *Manager) removeStaleCameras(ctx context.Context, filter string) {
	actors, err := m.world.Actors(ctx, filter)
	if err != nil {
		m.logger.Debug("Listing %s actors failed: %s", filter, err)
		return
	}
	for _, a := range actors {
		if err := m.world.Destroy(ctx, a.ID); err != nil {
			m.logger.Debug("Destroying stale actor %d failed: %s", a.ID, err)
		}
	}
	if len(actors) > 0 {
		m.logger.Debug("Removed %d stale cameras", len(actors))
	}
}

// spawnVehicle tries each shuffled spawn point once.
func (m *Manager) spawnVehicle(ctx context.Context, s *Session, blueprint string) (ports.Actor, error) {
	points, err := m.world.SpawnPoints(ctx)
	if err != nil {
		return ports.Actor{}, &SetupError{Step: StepSpawnPoints, Err: err}
	}
	m.rand.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })

	bp := ports.Blueprint{ID: blueprint, Attributes: map[string]string{"role_name": "hero"}}
	for _, at := range points {
		s.attempts++
		actor, ok, err := m.world.TrySpawnActor(ctx, bp, at)
		if err != nil {
			return ports.Actor{}, &SetupError{Step: StepSpawnVehicle, Err: err}
		}
		if ok {
			return actor, nil
		}
	}
	return ports.Actor{}, &SetupError{
		Step: StepSpawnVehicle,
		Err:  fmt.Errorf("%w: %d spawn points blocked", ErrNoSpawnPoint, len(points)),
	}
}

// Stream returns the encoder stream started by Setup.
func (s *Session) Stream() ports.EncodingStream {
	return s.stream
}

// Vehicle returns the spawned vehicle.
func (s *Session) Vehicle() ports.Actor {
	if s.vehicle == nil {
		return ports.Actor{}
	}
	return *s.vehicle
}

// Camera returns the spawned camera.
func (s *Session) Camera() ports.Actor {
	if s.camera == nil {
		return ports.Actor{}
	}
	return *s.camera
}

// SpawnAttempts returns how many spawn points were tried.
func (s *Session) SpawnAttempts() int {
	return s.attempts
}

// Teardown releases the session resources in reverse order of acquisition.
// Every step runs even if an earlier one failed; failures are logged and
// returned in the report. It runs once; later calls return the first report.
func (s *Session) Teardown(ctx context.Context) []StepResult {
	s.once.Do(func() {
		s.report = s.teardown(context.WithoutCancel(ctx))
	})
	return s.report
}

func (s *Session) teardown(ctx context.Context) []StepResult {
	var report []StepResult
	run := func(name string, fn func() error) {
		err := fn()
		if errors.Is(err, ports.ErrActorNotFound) {
			err = nil
		}
		if err != nil {
			s.logger.Warn("Teardown step %s failed: %s", name, err)
			s.metrics.TeardownFailed(name)
		}
		report = append(report, StepResult{Name: name, Err: err})
	}

	if s.stream != nil {
		run(StepCloseEncoder, s.stream.Close)
	}
	if s.camera != nil {
		id := s.camera.ID
		if s.listening {
			run(StepStopListening, func() error { return s.world.StopListening(ctx, id) })
		}
		run(StepDestroyCamera, func() error { return s.world.Destroy(ctx, id) })
	}
	if s.vehicle != nil {
		id := s.vehicle.ID
		run(StepDestroyVehicle, func() error { return s.world.Destroy(ctx, id) })
	}
	if s.hasPrior {
		run(StepRestoreSettings, func() error { return s.world.ApplySettings(ctx, s.prior) })
		run(StepRestoreTraffic, func() error { return s.world.SetTrafficManagerSync(ctx, s.tmPort, s.prior.SynchronousMode) })
	}

	return report
}

// Failed returns the teardown steps that reported an error.
func Failed(report []StepResult) []StepResult {
	var failed []StepResult
	for _, r := range report {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
