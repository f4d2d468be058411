// Package synthetic provides an in-process simulator for dry runs and tests.
//
// The world keeps actors in memory, moves autopilot vehicles along a
// straight road and renders camera images with ggrenderer. Images are
// delivered on a goroutine owned by the world, like a real simulator
// client delivers sensor data.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/user/drivecap/pkg/adapters/ggrenderer"
	"github.com/user/drivecap/pkg/ports"
)

// ErrClosed is returned by calls on a closed world.
var ErrClosed = errors.New("synthetic: world closed")

// Options configures the synthetic world.
type Options struct {
	// SpawnPoints is the number of spawn points on the map.
	SpawnPoints int
	// Blocked lists spawn point indexes where spawning always fails.
	Blocked []int
	// DropEvery skips image delivery on every nth frame when positive.
	DropEvery int
	// Speed is the autopilot cruising speed in meters per second.
	Speed float64
	// DeliveryTimeout bounds how long Tick waits for an image to be handed
	// to the listener.
	DeliveryTimeout time.Duration
}

// DefaultOptions returns options for a small free map.
func DefaultOptions() Options {
	return Options{
		SpawnPoints:     8,
		Speed:           12,
		DeliveryTimeout: time.Second,
	}
}

// Simulator implements ports.Simulator with an in-process world.
type Simulator struct {
	opts   Options
	logger ports.Logger
}

// New creates a new Simulator.
func New(opts Options, logger ports.Logger) *Simulator {
	return &Simulator{opts: opts, logger: logger.WithComponent("synthetic")}
}

// Connect creates a fresh world. host and port are only logged.
func (s *Simulator) Connect(ctx context.Context, host string, port int) (ports.World, error) {
	s.logger.Debug("Starting synthetic world for %s:%d", host, port)
	return NewWorld(s.opts, s.logger), nil
}

var _ ports.Simulator = (*Simulator)(nil)

type actor struct {
	ports.Actor
	transform ports.Transform
	parent    ports.ActorID
	autopilot bool
	distance  float64

	// Cameras only.
	width    int
	height   int
	tick     float64
	sinceImg float64
	renderer *ggrenderer.Renderer
}

type delivery struct {
	fn   func(ports.RawImage)
	img  ports.RawImage
	done chan struct{}
}

// World is an in-memory ports.World.
type World struct {
	opts   Options
	logger ports.Logger

	mu        sync.Mutex
	settings  ports.ClockSettings
	tmSync    map[int]bool
	points    []ports.Transform
	blocked   map[int]bool
	actors    map[ports.ActorID]*actor
	listeners map[ports.ActorID]func(ports.RawImage)
	nextID    ports.ActorID
	frame     uint64
	closed    bool

	deliveries chan delivery
	quit       chan struct{}
	wg         sync.WaitGroup
}

// NewWorld creates a world and starts its delivery goroutine.
func NewWorld(opts Options, logger ports.Logger) *World {
	if opts.SpawnPoints <= 0 {
		opts.SpawnPoints = DefaultOptions().SpawnPoints
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = DefaultOptions().DeliveryTimeout
	}

	w := &World{
		opts:       opts,
		logger:     logger,
		tmSync:     make(map[int]bool),
		blocked:    make(map[int]bool),
		actors:     make(map[ports.ActorID]*actor),
		listeners:  make(map[ports.ActorID]func(ports.RawImage)),
		deliveries: make(chan delivery),
		quit:       make(chan struct{}),
	}
	for i := 0; i < opts.SpawnPoints; i++ {
		w.points = append(w.points, ports.Transform{
			Location: ports.Location{X: float64(i) * 25, Y: 3.5 * float64(i%2), Z: 0.3},
			Rotation: ports.Rotation{Yaw: float64(i%4) * 90},
		})
	}
	for _, i := range opts.Blocked {
		w.blocked[i] = true
	}

	w.wg.Add(1)
	go w.deliver()
	return w
}

func (w *World) deliver() {
	defer w.wg.Done()
	for {
		select {
		case d := <-w.deliveries:
			d.fn(d.img)
			close(d.done)
		case <-w.quit:
			return
		}
	}
}

func (w *World) Settings(ctx context.Context) (ports.ClockSettings, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ports.ClockSettings{}, ErrClosed
	}
	return w.settings, nil
}

func (w *World) ApplySettings(ctx context.Context, settings ports.ClockSettings) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if settings.FixedDeltaSeconds < 0 {
		return fmt.Errorf("synthetic: negative fixed delta %g", settings.FixedDeltaSeconds)
	}
	w.settings = settings
	return nil
}

func (w *World) SetTrafficManagerSync(ctx context.Context, tmPort int, sync bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.tmSync[tmPort] = sync
	return nil
}

// TrafficManagerSync reports the synchronous flag of the traffic manager on tmPort.
func (w *World) TrafficManagerSync(tmPort int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tmSync[tmPort]
}

func (w *World) Actors(ctx context.Context, filter string) ([]ports.Actor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	var out []ports.Actor
	for _, a := range w.actors {
		if ok, _ := path.Match(filter, a.TypeID); ok {
			out = append(out, a.Actor)
		}
	}
	return out, nil
}

func (w *World) SpawnPoints(ctx context.Context) ([]ports.Transform, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	return append([]ports.Transform(nil), w.points...), nil
}

func (w *World) TrySpawnActor(ctx context.Context, bp ports.Blueprint, at ports.Transform) (ports.Actor, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ports.Actor{}, false, ErrClosed
	}

	for i, p := range w.points {
		if p == at && w.blocked[i] {
			return ports.Actor{}, false, nil
		}
	}
	for _, a := range w.actors {
		if a.parent == 0 && a.transform == at {
			return ports.Actor{}, false, nil
		}
	}
	return w.addActor(bp, at, 0).Actor, true, nil
}

func (w *World) SpawnActor(ctx context.Context, bp ports.Blueprint, at ports.Transform, parent ports.ActorID) (ports.Actor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ports.Actor{}, ErrClosed
	}
	if parent != 0 {
		if _, ok := w.actors[parent]; !ok {
			return ports.Actor{}, fmt.Errorf("synthetic: parent %d: %w", parent, ports.ErrActorNotFound)
		}
	}

	a := w.addActor(bp, at, parent)
	if strings.HasPrefix(bp.ID, "sensor.camera") {
		var err error
		if a.width, err = intAttr(bp, "image_size_x", 800); err != nil {
			delete(w.actors, a.ID)
			return ports.Actor{}, err
		}
		if a.height, err = intAttr(bp, "image_size_y", 600); err != nil {
			delete(w.actors, a.ID)
			return ports.Actor{}, err
		}
		if v, ok := bp.Attributes["sensor_tick"]; ok {
			if a.tick, err = strconv.ParseFloat(v, 64); err != nil {
				delete(w.actors, a.ID)
				return ports.Actor{}, fmt.Errorf("synthetic: sensor_tick %q: %w", v, err)
			}
		}
	}
	return a.Actor, nil
}

func intAttr(bp ports.Blueprint, key string, def int) (int, error) {
	v, ok := bp.Attributes[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("synthetic: %s %q: invalid size", key, v)
	}
	return n, nil
}

// addActor must be called with w.mu held.
func (w *World) addActor(bp ports.Blueprint, at ports.Transform, parent ports.ActorID) *actor {
	w.nextID++
	a := &actor{
		Actor:     ports.Actor{ID: w.nextID, TypeID: bp.ID},
		transform: at,
		parent:    parent,
	}
	w.actors[a.ID] = a
	return a
}

func (w *World) SetAutopilot(ctx context.Context, vehicle ports.ActorID, enabled bool, tmPort int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	a, ok := w.actors[vehicle]
	if !ok {
		return fmt.Errorf("synthetic: vehicle %d: %w", vehicle, ports.ErrActorNotFound)
	}
	a.autopilot = enabled
	return nil
}

func (w *World) Listen(ctx context.Context, sensor ports.ActorID, fn func(ports.RawImage)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	a, ok := w.actors[sensor]
	if !ok {
		return fmt.Errorf("synthetic: sensor %d: %w", sensor, ports.ErrActorNotFound)
	}
	if a.width == 0 || a.height == 0 {
		return fmt.Errorf("synthetic: actor %d (%s) is not a camera", sensor, a.TypeID)
	}
	if a.renderer == nil {
		a.renderer = ggrenderer.New(a.width, a.height)
	}
	w.listeners[sensor] = fn
	return nil
}

func (w *World) StopListening(ctx context.Context, sensor ports.ActorID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, ok := w.actors[sensor]; !ok {
		return fmt.Errorf("synthetic: sensor %d: %w", sensor, ports.ErrActorNotFound)
	}
	delete(w.listeners, sensor)
	return nil
}

// Tick advances the world one step, renders every listening camera whose
// sensor tick has elapsed and waits until the images were handed to their
// listeners.
func (w *World) Tick(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, ErrClosed
	}

	dt := w.settings.FixedDeltaSeconds
	if dt == 0 {
		dt = 0.05
	}
	w.frame++
	frame := w.frame

	for _, a := range w.actors {
		if a.autopilot {
			a.distance += w.opts.Speed * dt
		}
	}

	var pending []delivery
	drop := w.opts.DropEvery > 0 && frame%uint64(w.opts.DropEvery) == 0
	for id, fn := range w.listeners {
		cam := w.actors[id]
		cam.sinceImg += dt
		if cam.tick > 0 && cam.sinceImg+1e-9 < cam.tick {
			continue
		}
		cam.sinceImg = 0
		if drop {
			continue
		}

		scene := ggrenderer.Scene{Frame: frame}
		if parent, ok := w.actors[cam.parent]; ok {
			scene.Distance = parent.distance
			scene.Heading = parent.transform.Rotation.Yaw + parent.distance
			if parent.autopilot {
				scene.Speed = w.opts.Speed
			}
		}
		img := ports.RawImage{
			Frame:  frame,
			Width:  cam.width,
			Height: cam.height,
			Data:   ggrenderer.BGRA(cam.renderer.Render(scene)),
		}
		pending = append(pending, delivery{fn: fn, img: img, done: make(chan struct{})})
	}
	w.mu.Unlock()

	timeout := time.NewTimer(w.opts.DeliveryTimeout)
	defer timeout.Stop()
	for _, d := range pending {
		select {
		case w.deliveries <- d:
		case <-w.quit:
			return frame, ErrClosed
		case <-ctx.Done():
			return frame, ctx.Err()
		case <-timeout.C:
			return frame, fmt.Errorf("synthetic: frame %d: delivery timed out", frame)
		}
		select {
		case <-d.done:
		case <-ctx.Done():
			return frame, ctx.Err()
		case <-timeout.C:
			return frame, fmt.Errorf("synthetic: frame %d: delivery timed out", frame)
		}
	}
	return frame, nil
}

func (w *World) Destroy(ctx context.Context, id ports.ActorID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, ok := w.actors[id]; !ok {
		return fmt.Errorf("synthetic: actor %d: %w", id, ports.ErrActorNotFound)
	}
	delete(w.actors, id)
	delete(w.listeners, id)
	return nil
}

// Close stops image delivery. Actors are discarded with the world.
func (w *World) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.quit)
	w.wg.Wait()
	return nil
}

var _ ports.World = (*World)(nil)
