// Package metrics exposes Prometheus instrumentation for the recording pipeline.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the pipeline metrics. All record methods are safe to
// call on a nil *Collector, which turns instrumentation off.
type Collector struct {
	gatherer prometheus.Gatherer

	Ticks          prometheus.Counter
	SkippedTicks   prometheus.Counter
	FramesWritten  prometheus.Counter
	BytesWritten   prometheus.Counter
	FramesCaptured prometheus.Counter
	FramesRejected prometheus.Counter
	FramesDropped  prometheus.Counter

	TickDuration  prometheus.Histogram
	WriteDuration prometheus.Histogram

	TeardownFailures *prometheus.CounterVec
	Sessions         *prometheus.CounterVec
}

// New registers the pipeline metrics against reg, defaulting to the global
// Prometheus registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}

	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.Ticks, "drivecap_ticks_total", "Simulation clock steps performed."},
		{&c.SkippedTicks, "drivecap_skipped_ticks_total", "Steps after which no new frame was available."},
		{&c.FramesWritten, "drivecap_frames_written_total", "Frames forwarded to the encoder."},
		{&c.BytesWritten, "drivecap_bytes_written_total", "Raw payload bytes forwarded to the encoder."},
		{&c.FramesCaptured, "drivecap_frames_captured_total", "Camera images accepted by the capture adapter."},
		{&c.FramesRejected, "drivecap_frames_rejected_total", "Camera images rejected as malformed or mis-sized."},
		{&c.FramesDropped, "drivecap_frames_dropped_total", "Frames overwritten in the buffer before being read."},
	}
	for _, ctr := range counters {
		counter, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: ctr.name,
			Help: ctr.help,
		}), ctr.name)
		if err != nil {
			return nil, err
		}
		*ctr.dst = counter
	}

	var err error
	c.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "drivecap_tick_duration_seconds",
		Help:    "Latency of a single simulation step.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "drivecap_tick_duration_seconds")
	if err != nil {
		return nil, err
	}
	c.WriteDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "drivecap_encoder_write_seconds",
		Help:    "Time spent writing one frame to the encoder input.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}), "drivecap_encoder_write_seconds")
	if err != nil {
		return nil, err
	}

	c.TeardownFailures, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drivecap_teardown_failures_total",
		Help: "Teardown steps that failed, labeled by step.",
	}, []string{"step"}), "drivecap_teardown_failures_total")
	if err != nil {
		return nil, err
	}
	c.Sessions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drivecap_sessions_total",
		Help: "Recording sessions, labeled by outcome (ok, setup_failed, failed, interrupted).",
	}, []string{"outcome"}), "drivecap_sessions_total")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// TickDone records one completed simulation step.
func (c *Collector) TickDone(d time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(d.Seconds())
}

// TickSkipped records a step with no frame available.
func (c *Collector) TickSkipped() {
	if c == nil {
		return
	}
	c.SkippedTicks.Inc()
}

// FrameWritten records a frame forwarded to the encoder.
func (c *Collector) FrameWritten(bytes int, d time.Duration) {
	if c == nil {
		return
	}
	c.FramesWritten.Inc()
	c.BytesWritten.Add(float64(bytes))
	c.WriteDuration.Observe(d.Seconds())
}

// FrameCaptured records an accepted camera image; dropped reports whether it
// replaced an unread frame.
func (c *Collector) FrameCaptured(dropped bool) {
	if c == nil {
		return
	}
	c.FramesCaptured.Inc()
	if dropped {
		c.FramesDropped.Inc()
	}
}

// FrameRejected records a camera image that could not be converted.
func (c *Collector) FrameRejected() {
	if c == nil {
		return
	}
	c.FramesRejected.Inc()
}

// TeardownFailed records a failed teardown step.
func (c *Collector) TeardownFailed(step string) {
	if c == nil {
		return
	}
	c.TeardownFailures.WithLabelValues(step).Inc()
}

// SessionFinished records the outcome of a session.
func (c *Collector) SessionFinished(outcome string) {
	if c == nil {
		return
	}
	c.Sessions.WithLabelValues(outcome).Inc()
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
