// Package ports defines interfaces for external dependencies.
package ports

import (
	"context"
	"errors"
)

// ErrActorNotFound is returned by World.Destroy and related calls when the
// actor no longer exists on the simulator side.
var ErrActorNotFound = errors.New("ports: actor not found")

// Simulator connects to a simulation server.
type Simulator interface {
	// Connect opens a session to the simulator at host:port and returns its world.
	Connect(ctx context.Context, host string, port int) (World, error)
}

// World abstracts the simulator world used by a recording session.
type World interface {
	// Settings returns the current clock configuration.
	Settings(ctx context.Context) (ClockSettings, error)

	// ApplySettings replaces the clock configuration.
	ApplySettings(ctx context.Context, settings ClockSettings) error

	// SetTrafficManagerSync toggles synchronous mode of the traffic manager on tmPort.
	SetTrafficManagerSync(ctx context.Context, tmPort int, sync bool) error

	// Actors lists actors whose type ID matches filter (wildcards allowed).
	Actors(ctx context.Context, filter string) ([]Actor, error)

	// SpawnPoints returns the candidate vehicle spawn transforms of the map.
	SpawnPoints(ctx context.Context) ([]Transform, error)

	// TrySpawnActor spawns an actor at the transform.
	// ok is false when the location is blocked; err is reserved for transport failures.
	TrySpawnActor(ctx context.Context, bp Blueprint, at Transform) (actor Actor, ok bool, err error)

	// SpawnActor spawns an actor attached to parent with a relative transform.
	SpawnActor(ctx context.Context, bp Blueprint, at Transform, parent ActorID) (Actor, error)

	// SetAutopilot hands the vehicle to the traffic manager on tmPort.
	SetAutopilot(ctx context.Context, vehicle ActorID, enabled bool, tmPort int) error

	// Listen registers fn as the image callback of a camera sensor.
	// fn is invoked on a goroutine owned by the implementation.
	Listen(ctx context.Context, sensor ActorID, fn func(RawImage)) error

	// StopListening stops image delivery for the sensor.
	StopListening(ctx context.Context, sensor ActorID) error

	// Tick advances the simulation by one fixed step and blocks until it completes.
	// Returns the simulator frame number reached.
	Tick(ctx context.Context) (uint64, error)

	// Destroy removes an actor. Returns ErrActorNotFound if it is already gone.
	Destroy(ctx context.Context, id ActorID) error

	// Close releases the connection.
	Close() error
}

// ActorID identifies an actor inside the simulator.
type ActorID uint32

// Actor is a handle to a simulator actor.
type Actor struct {
	ID     ActorID
	TypeID string // e.g. "vehicle.tesla.model3", "sensor.camera.rgb"
}

// Blueprint describes an actor to spawn.
type Blueprint struct {
	ID         string
	Attributes map[string]string
}

// Location is a position in meters.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation is an orientation in degrees.
type Rotation struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Transform places an actor in the world or relative to its parent.
type Transform struct {
	Location Location `json:"location"`
	Rotation Rotation `json:"rotation"`
}

// RawImage is a camera image as delivered by the simulator.
type RawImage struct {
	Frame  uint64 // Simulator frame number
	Width  int
	Height int
	Data   []byte // BGRA, 4 bytes per pixel, row-major
}
