// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"
	"sync"

	"github.com/user/drivecap/pkg/ports"
)

// Simulator is a mock implementation of ports.Simulator.
type Simulator struct {
	ConnectFunc func(ctx context.Context, host string, port int) (ports.World, error)

	// World is returned by Connect when ConnectFunc is nil.
	World ports.World

	ConnectHost string
	ConnectPort int
}

func (m *Simulator) Connect(ctx context.Context, host string, port int) (ports.World, error) {
	m.ConnectHost = host
	m.ConnectPort = port
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, host, port)
	}
	if m.World == nil {
		return NewWorld(), nil
	}
	return m.World, nil
}

var _ ports.Simulator = (*Simulator)(nil)

// World is a mock implementation of ports.World.
//
// Without function fields it behaves like a small in-memory world: every
// spawn succeeds with increasing actor IDs, Tick returns increasing frame
// numbers and Settings returns whatever was last applied.
type World struct {
	mu sync.Mutex

	SettingsFunc              func(ctx context.Context) (ports.ClockSettings, error)
	ApplySettingsFunc         func(ctx context.Context, settings ports.ClockSettings) error
	SetTrafficManagerSyncFunc func(ctx context.Context, tmPort int, sync bool) error
	ActorsFunc                func(ctx context.Context, filter string) ([]ports.Actor, error)
	SpawnPointsFunc           func(ctx context.Context) ([]ports.Transform, error)
	TrySpawnActorFunc         func(ctx context.Context, bp ports.Blueprint, at ports.Transform) (ports.Actor, bool, error)
	SpawnActorFunc            func(ctx context.Context, bp ports.Blueprint, at ports.Transform, parent ports.ActorID) (ports.Actor, error)
	SetAutopilotFunc          func(ctx context.Context, vehicle ports.ActorID, enabled bool, tmPort int) error
	ListenFunc                func(ctx context.Context, sensor ports.ActorID, fn func(ports.RawImage)) error
	StopListeningFunc         func(ctx context.Context, sensor ports.ActorID) error
	TickFunc                  func(ctx context.Context) (uint64, error)
	DestroyFunc               func(ctx context.Context, id ports.ActorID) error
	CloseFunc                 func() error

	// Current is the clock configuration reported by the default Settings.
	Current ports.ClockSettings
	// TrafficManagerSync is the last value passed to SetTrafficManagerSync.
	TrafficManagerSync bool

	// Recorded calls for verification
	Calls          []string
	Applied        []ports.ClockSettings
	SpawnAttempts  []ports.Transform
	SpawnedSensors []ports.Blueprint
	Destroyed      []ports.ActorID
	Listener       func(ports.RawImage)
	TickCount      int
	Closed         bool

	nextID ports.ActorID
}

// NewWorld creates a mock World reporting asynchronous default settings.
func NewWorld() *World {
	return &World{nextID: 100}
}

func (m *World) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

func (m *World) newActor(typeID string) ports.Actor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return ports.Actor{ID: m.nextID, TypeID: typeID}
}

func (m *World) Settings(ctx context.Context) (ports.ClockSettings, error) {
	m.record("Settings")
	if m.SettingsFunc != nil {
		return m.SettingsFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Current, nil
}

func (m *World) ApplySettings(ctx context.Context, settings ports.ClockSettings) error {
	m.record("ApplySettings")
	m.mu.Lock()
	m.Applied = append(m.Applied, settings)
	m.mu.Unlock()
	if m.ApplySettingsFunc != nil {
		return m.ApplySettingsFunc(ctx, settings)
	}
	m.mu.Lock()
	m.Current = settings
	m.mu.Unlock()
	return nil
}

func (m *World) SetTrafficManagerSync(ctx context.Context, tmPort int, sync bool) error {
	m.record("SetTrafficManagerSync")
	if m.SetTrafficManagerSyncFunc != nil {
		return m.SetTrafficManagerSyncFunc(ctx, tmPort, sync)
	}
	m.mu.Lock()
	m.TrafficManagerSync = sync
	m.mu.Unlock()
	return nil
}

func (m *World) Actors(ctx context.Context, filter string) ([]ports.Actor, error) {
	m.record("Actors")
	if m.ActorsFunc != nil {
		return m.ActorsFunc(ctx, filter)
	}
	return nil, nil
}

func (m *World) SpawnPoints(ctx context.Context) ([]ports.Transform, error) {
	m.record("SpawnPoints")
	if m.SpawnPointsFunc != nil {
		return m.SpawnPointsFunc(ctx)
	}
	return []ports.Transform{{Location: ports.Location{X: 1, Y: 2}}}, nil
}

func (m *World) TrySpawnActor(ctx context.Context, bp ports.Blueprint, at ports.Transform) (ports.Actor, bool, error) {
	m.record("TrySpawnActor")
	m.mu.Lock()
	m.SpawnAttempts = append(m.SpawnAttempts, at)
	m.mu.Unlock()
	if m.TrySpawnActorFunc != nil {
		return m.TrySpawnActorFunc(ctx, bp, at)
	}
	return m.newActor(bp.ID), true, nil
}

func (m *World) SpawnActor(ctx context.Context, bp ports.Blueprint, at ports.Transform, parent ports.ActorID) (ports.Actor, error) {
	m.record("SpawnActor")
	m.mu.Lock()
	m.SpawnedSensors = append(m.SpawnedSensors, bp)
	m.mu.Unlock()
	if m.SpawnActorFunc != nil {
		return m.SpawnActorFunc(ctx, bp, at, parent)
	}
	return m.newActor(bp.ID), nil
}

func (m *World) SetAutopilot(ctx context.Context, vehicle ports.ActorID, enabled bool, tmPort int) error {
	m.record("SetAutopilot")
	if m.SetAutopilotFunc != nil {
		return m.SetAutopilotFunc(ctx, vehicle, enabled, tmPort)
	}
	return nil
}

func (m *World) Listen(ctx context.Context, sensor ports.ActorID, fn func(ports.RawImage)) error {
	m.record("Listen")
	if m.ListenFunc != nil {
		return m.ListenFunc(ctx, sensor, fn)
	}
	m.mu.Lock()
	m.Listener = fn
	m.mu.Unlock()
	return nil
}

func (m *World) StopListening(ctx context.Context, sensor ports.ActorID) error {
	m.record("StopListening")
	if m.StopListeningFunc != nil {
		return m.StopListeningFunc(ctx, sensor)
	}
	m.mu.Lock()
	m.Listener = nil
	m.mu.Unlock()
	return nil
}

func (m *World) Tick(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	m.TickCount++
	n := m.TickCount
	m.mu.Unlock()
	if m.TickFunc != nil {
		return m.TickFunc(ctx)
	}
	return uint64(n), nil
}

func (m *World) Destroy(ctx context.Context, id ports.ActorID) error {
	m.record("Destroy")
	m.mu.Lock()
	m.Destroyed = append(m.Destroyed, id)
	m.mu.Unlock()
	if m.DestroyFunc != nil {
		return m.DestroyFunc(ctx, id)
	}
	return nil
}

func (m *World) Close() error {
	m.record("Close")
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// CallLog returns a copy of the recorded call names in order.
func (m *World) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

var _ ports.World = (*World)(nil)
