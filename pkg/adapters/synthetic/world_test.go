package synthetic

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/user/drivecap/pkg/adapters/logger"
	"github.com/user/drivecap/pkg/ports"
)

func newTestWorld(t *testing.T, opts Options) *World {
	t.Helper()
	w := NewWorld(opts, logger.NewNoop())
	t.Cleanup(func() { w.Close() })
	return w
}

func camera(width, height int, tick string) ports.Blueprint {
	return ports.Blueprint{
		ID: "sensor.camera.rgb",
		Attributes: map[string]string{
			"image_size_x": strconv.Itoa(width),
			"image_size_y": strconv.Itoa(height),
			"sensor_tick":  tick,
		},
	}
}

func spawnRig(t *testing.T, w *World, width, height int, tick string) (ports.Actor, ports.Actor) {
	t.Helper()
	ctx := context.Background()
	points, err := w.SpawnPoints(ctx)
	if err != nil || len(points) == 0 {
		t.Fatalf("spawn points: %v", err)
	}
	vehicle, ok, err := w.TrySpawnActor(ctx, ports.Blueprint{ID: "vehicle.tesla.model3"}, points[0])
	if err != nil || !ok {
		t.Fatalf("spawn vehicle: ok=%t err=%v", ok, err)
	}
	cam, err := w.SpawnActor(ctx, camera(width, height, tick), ports.Transform{}, vehicle.ID)
	if err != nil {
		t.Fatalf("spawn camera: %v", err)
	}
	return vehicle, cam
}

func TestWorld_Settings(t *testing.T) {
	w := newTestWorld(t, DefaultOptions())
	ctx := context.Background()

	want := ports.ClockSettings{SynchronousMode: true, FixedDeltaSeconds: 0.05}
	if err := w.ApplySettings(ctx, want); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := w.Settings(ctx)
	if err != nil || got != want {
		t.Errorf("expected %+v, got %+v (%v)", want, got, err)
	}

	if err := w.SetTrafficManagerSync(ctx, 8000, true); err != nil {
		t.Fatalf("tm sync: %v", err)
	}
	if !w.TrafficManagerSync(8000) || w.TrafficManagerSync(8001) {
		t.Error("traffic manager sync flag not tracked per port")
	}
}

func TestWorld_TrySpawnActor(t *testing.T) {
	opts := DefaultOptions()
	opts.SpawnPoints = 3
	opts.Blocked = []int{0}
	w := newTestWorld(t, opts)
	ctx := context.Background()
	bp := ports.Blueprint{ID: "vehicle.tesla.model3"}

	points, _ := w.SpawnPoints(ctx)
	if len(points) != 3 {
		t.Fatalf("expected 3 spawn points, got %d", len(points))
	}

	if _, ok, err := w.TrySpawnActor(ctx, bp, points[0]); ok || err != nil {
		t.Errorf("blocked point: ok=%t err=%v", ok, err)
	}
	if _, ok, err := w.TrySpawnActor(ctx, bp, points[1]); !ok || err != nil {
		t.Errorf("free point: ok=%t err=%v", ok, err)
	}
	if _, ok, _ := w.TrySpawnActor(ctx, bp, points[1]); ok {
		t.Error("occupied point must be blocked")
	}
}

func TestWorld_ActorsAndDestroy(t *testing.T) {
	w := newTestWorld(t, DefaultOptions())
	ctx := context.Background()
	_, cam := spawnRig(t, w, 8, 4, "0.05")

	cams, err := w.Actors(ctx, "sensor.camera.*")
	if err != nil || len(cams) != 1 || cams[0].ID != cam.ID {
		t.Fatalf("expected the camera, got %v (%v)", cams, err)
	}
	all, _ := w.Actors(ctx, "*")
	if len(all) != 2 {
		t.Errorf("expected 2 actors, got %d", len(all))
	}

	if err := w.Destroy(ctx, cam.ID); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := w.Destroy(ctx, cam.ID); !errors.Is(err, ports.ErrActorNotFound) {
		t.Errorf("expected ErrActorNotFound, got %v", err)
	}
}

func TestWorld_TickDeliversImages(t *testing.T) {
	w := newTestWorld(t, DefaultOptions())
	ctx := context.Background()
	if err := w.ApplySettings(ctx, ports.ClockSettings{SynchronousMode: true, FixedDeltaSeconds: 0.1}); err != nil {
		t.Fatal(err)
	}
	vehicle, cam := spawnRig(t, w, 32, 16, "0.1")
	if err := w.SetAutopilot(ctx, vehicle.ID, true, 8000); err != nil {
		t.Fatalf("autopilot: %v", err)
	}

	var mu sync.Mutex
	var images []ports.RawImage
	if err := w.Listen(ctx, cam.ID, func(img ports.RawImage) {
		mu.Lock()
		images = append(images, img)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("listen: %v", err)
	}

	for i := 1; i <= 5; i++ {
		frame, err := w.Tick(ctx)
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if frame != uint64(i) {
			t.Errorf("expected frame %d, got %d", i, frame)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(images) != 5 {
		t.Fatalf("expected 5 images, got %d", len(images))
	}
	for i, img := range images {
		if img.Frame != uint64(i+1) || img.Width != 32 || img.Height != 16 || len(img.Data) != 32*16*4 {
			t.Errorf("image %d: unexpected %dx%d frame %d len %d", i, img.Width, img.Height, img.Frame, len(img.Data))
		}
	}
}

func TestWorld_SensorTickAndDrops(t *testing.T) {
	opts := DefaultOptions()
	opts.DropEvery = 3
	w := newTestWorld(t, opts)
	ctx := context.Background()
	_ = w.ApplySettings(ctx, ports.ClockSettings{SynchronousMode: true, FixedDeltaSeconds: 0.05})
	_, cam := spawnRig(t, w, 4, 4, "0.05")

	count := 0
	if err := w.Listen(ctx, cam.ID, func(ports.RawImage) { count++ }); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		if _, err := w.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if count != 6 {
		t.Errorf("expected 6 images with every third dropped, got %d", count)
	}

	if err := w.StopListening(ctx, cam.ID); err != nil {
		t.Fatal(err)
	}
	_, _ = w.Tick(ctx)
	if count != 6 {
		t.Errorf("expected no delivery after stop, got %d", count)
	}
}

func TestWorld_ListenRejectsNonCamera(t *testing.T) {
	w := newTestWorld(t, DefaultOptions())
	vehicle, _ := spawnRig(t, w, 4, 4, "0.05")

	if err := w.Listen(context.Background(), vehicle.ID, func(ports.RawImage) {}); err == nil {
		t.Error("expected error listening on a vehicle")
	}
	if err := w.Listen(context.Background(), 999, func(ports.RawImage) {}); !errors.Is(err, ports.ErrActorNotFound) {
		t.Errorf("expected ErrActorNotFound, got %v", err)
	}
}

func TestWorld_Close(t *testing.T) {
	w := NewWorld(DefaultOptions(), logger.NewNoop())
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := w.Tick(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
