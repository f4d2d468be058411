package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.TickDone(10 * time.Millisecond)
	c.TickDone(12 * time.Millisecond)
	c.TickSkipped()
	c.FrameWritten(300, time.Millisecond)
	c.FrameCaptured(false)
	c.FrameCaptured(true)
	c.FrameRejected()
	c.TeardownFailed("destroy camera")
	c.SessionFinished("ok")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"ticks", testutil.ToFloat64(c.Ticks), 2},
		{"skipped", testutil.ToFloat64(c.SkippedTicks), 1},
		{"written", testutil.ToFloat64(c.FramesWritten), 1},
		{"bytes", testutil.ToFloat64(c.BytesWritten), 300},
		{"captured", testutil.ToFloat64(c.FramesCaptured), 2},
		{"dropped", testutil.ToFloat64(c.FramesDropped), 1},
		{"rejected", testutil.ToFloat64(c.FramesRejected), 1},
		{"teardown", testutil.ToFloat64(c.TeardownFailures.WithLabelValues("destroy camera")), 1},
		{"sessions", testutil.ToFloat64(c.Sessions.WithLabelValues("ok")), 1},
	}
	for _, check := range checks {
		if check.got != check.want {
			t.Errorf("%s: expected %v, got %v", check.name, check.want, check.got)
		}
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	// Must not panic
	c.TickDone(time.Millisecond)
	c.TickSkipped()
	c.FrameWritten(1, time.Millisecond)
	c.FrameCaptured(true)
	c.FrameRejected()
	c.TeardownFailed("x")
	c.SessionFinished("ok")
}

func TestCollector_RegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	if err != nil {
		t.Fatalf("first New failed: %v", err)
	}
	second, err := New(reg)
	if err != nil {
		t.Fatalf("second New failed: %v", err)
	}

	second.TickSkipped()
	if got := testutil.ToFloat64(first.SkippedTicks); got != 1 {
		t.Errorf("expected shared counter, got %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.TickDone(time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "drivecap_ticks_total 1") {
		t.Errorf("expected ticks counter in output, got:\n%s", rec.Body.String())
	}
}
