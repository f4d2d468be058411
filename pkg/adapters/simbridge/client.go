// Package simbridge connects to a simulator through its websocket bridge.
package simbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/drivecap/pkg/ports"
)

// ErrClosed is returned by calls on a closed or broken connection.
var ErrClosed = errors.New("simbridge: connection closed")

// DefaultPath is the websocket endpoint served by the bridge.
const DefaultPath = "/bridge"

// Simulator implements ports.Simulator over the bridge protocol.
type Simulator struct {
	dialer  websocket.Dialer
	timeout time.Duration
	path    string
	logger  ports.Logger
}

// New creates a Simulator. timeout bounds the handshake and every call.
func New(timeout time.Duration, logger ports.Logger) *Simulator {
	return &Simulator{
		dialer:  websocket.Dialer{HandshakeTimeout: timeout},
		timeout: timeout,
		path:    DefaultPath,
		logger:  logger.WithComponent("simbridge"),
	}
}

// Connect dials ws://host:port/bridge.
func (s *Simulator) Connect(ctx context.Context, host string, port int) (ports.World, error) {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: s.path}
	s.logger.Debug("Connecting to %s", u.String())

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("simbridge: dial %s: %w", u.String(), err)
	}

	w := &World{
		conn:      conn,
		timeout:   s.timeout,
		logger:    s.logger,
		pending:   make(map[uint64]chan response),
		listeners: make(map[ports.ActorID]func(ports.RawImage)),
		done:      make(chan struct{}),
	}
	go w.readLoop()
	return w, nil
}

var _ ports.Simulator = (*Simulator)(nil)

// World is a bridge connection. Requests may be issued from any goroutine;
// image callbacks run on the connection's read goroutine.
type World struct {
	conn    *websocket.Conn
	timeout time.Duration
	logger  ports.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	nextID    uint64
	pending   map[uint64]chan response
	listeners map[ports.ActorID]func(ports.RawImage)
	readErr   error
	broken    bool

	done      chan struct{}
	closeOnce sync.Once
}

func (w *World) readLoop() {
	var err error
	defer func() {
		w.mu.Lock()
		w.readErr = err
		w.broken = true
		pending := w.pending
		w.pending = make(map[uint64]chan response)
		w.mu.Unlock()
		for _, ch := range pending {
			close(ch)
		}
		close(w.done)
	}()

	for {
		var mt int
		var msg []byte
		mt, msg, err = w.conn.ReadMessage()
		if err != nil {
			return
		}

		switch mt {
		case websocket.TextMessage:
			var resp response
			if jerr := json.Unmarshal(msg, &resp); jerr != nil {
				w.logger.Warn("Malformed bridge reply: %s", jerr)
				continue
			}
			w.mu.Lock()
			ch, ok := w.pending[resp.ID]
			delete(w.pending, resp.ID)
			w.mu.Unlock()
			if ok {
				ch <- resp
			}
		case websocket.BinaryMessage:
			sensor, img, derr := DecodeImage(msg)
			if derr != nil {
				w.logger.Debug("Dropping image: %s", derr)
				continue
			}
			w.mu.Lock()
			fn := w.listeners[sensor]
			w.mu.Unlock()
			if fn != nil {
				fn(img)
			}
		}
	}
}

// call sends a request and decodes the result into out (if non-nil).
func (w *World) call(ctx context.Context, method string, params, out interface{}) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	ch := make(chan response, 1)
	w.mu.Lock()
	if w.broken {
		w.mu.Unlock()
		return fmt.Errorf("%s: %w", method, ErrClosed)
	}
	w.nextID++
	id := w.nextID
	w.pending[id] = ch
	w.mu.Unlock()

	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		w.forget(id)
		return fmt.Errorf("%s: encode: %w", method, err)
	}

	w.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = w.conn.SetWriteDeadline(deadline)
	}
	err = w.conn.WriteMessage(websocket.TextMessage, data)
	w.writeMu.Unlock()
	if err != nil {
		w.forget(id)
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", method, w.closedErr())
		}
		if resp.Error != nil {
			return fmt.Errorf("%s: %w", method, resp.Error)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("%s: decode: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		w.forget(id)
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (w *World) forget(id uint64) {
	w.mu.Lock()
	delete(w.pending, id)
	w.mu.Unlock()
}

func (w *World) closedErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readErr != nil && !websocket.IsCloseError(w.readErr, websocket.CloseNormalClosure) {
		return fmt.Errorf("%w: %v", ErrClosed, w.readErr)
	}
	return ErrClosed
}

func (w *World) Settings(ctx context.Context) (ports.ClockSettings, error) {
	var settings ports.ClockSettings
	err := w.call(ctx, "get_settings", nil, &settings)
	return settings, err
}

func (w *World) ApplySettings(ctx context.Context, settings ports.ClockSettings) error {
	return w.call(ctx, "apply_settings", settings, nil)
}

func (w *World) SetTrafficManagerSync(ctx context.Context, tmPort int, sync bool) error {
	return w.call(ctx, "set_tm_sync", tmSyncParams{Port: tmPort, Synchronous: sync}, nil)
}

func (w *World) Actors(ctx context.Context, filter string) ([]ports.Actor, error) {
	var wire []wireActor
	if err := w.call(ctx, "get_actors", filterParams{Filter: filter}, &wire); err != nil {
		return nil, err
	}
	actors := make([]ports.Actor, len(wire))
	for i, a := range wire {
		actors[i] = a.actor()
	}
	return actors, nil
}

func (w *World) SpawnPoints(ctx context.Context) ([]ports.Transform, error) {
	var points []ports.Transform
	err := w.call(ctx, "get_spawn_points", nil, &points)
	return points, err
}

func (w *World) TrySpawnActor(ctx context.Context, bp ports.Blueprint, at ports.Transform) (ports.Actor, bool, error) {
	var res trySpawnResult
	params := spawnParams{Blueprint: wireBlueprint(bp), Transform: at}
	if err := w.call(ctx, "try_spawn_actor", params, &res); err != nil {
		return ports.Actor{}, false, err
	}
	if res.Actor == nil {
		return ports.Actor{}, false, nil
	}
	return res.Actor.actor(), true, nil
}

func (w *World) SpawnActor(ctx context.Context, bp ports.Blueprint, at ports.Transform, parent ports.ActorID) (ports.Actor, error) {
	var res wireActor
	params := spawnParams{Blueprint: wireBlueprint(bp), Transform: at, Parent: parent}
	if err := w.call(ctx, "spawn_actor", params, &res); err != nil {
		return ports.Actor{}, err
	}
	return res.actor(), nil
}

func (w *World) SetAutopilot(ctx context.Context, vehicle ports.ActorID, enabled bool, tmPort int) error {
	return w.call(ctx, "set_autopilot", autopilotParams{Actor: vehicle, Enabled: enabled, TMPort: tmPort}, nil)
}

// Listen registers fn before asking the bridge to stream the sensor so that
// no image is lost.
func (w *World) Listen(ctx context.Context, sensor ports.ActorID, fn func(ports.RawImage)) error {
	w.mu.Lock()
	w.listeners[sensor] = fn
	w.mu.Unlock()

	if err := w.call(ctx, "listen", sensorParams{Sensor: sensor}, nil); err != nil {
		w.mu.Lock()
		delete(w.listeners, sensor)
		w.mu.Unlock()
		return err
	}
	return nil
}

func (w *World) StopListening(ctx context.Context, sensor ports.ActorID) error {
	w.mu.Lock()
	delete(w.listeners, sensor)
	w.mu.Unlock()
	return w.call(ctx, "stop_listening", sensorParams{Sensor: sensor}, nil)
}

func (w *World) Tick(ctx context.Context) (uint64, error) {
	var res tickResult
	err := w.call(ctx, "tick", nil, &res)
	return res.Frame, err
}

func (w *World) Destroy(ctx context.Context, id ports.ActorID) error {
	return w.call(ctx, "destroy", actorParams{Actor: id}, nil)
}

// Close sends a close frame and waits for the read goroutine to exit.
func (w *World) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()

		select {
		case <-w.done:
		case <-time.After(2 * time.Second):
		}
		err = w.conn.Close()
		<-w.done
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

var _ ports.World = (*World)(nil)
