package mocks

import (
	"sync"
	"time"

	"github.com/user/drivecap/pkg/ports"
)

// Clock is a manually driven ports.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var _ ports.Clock = (*Clock)(nil)

// OutputProbe is a mock implementation of ports.OutputProbe.
type OutputProbe struct {
	ProbeFunc func(path string) (*ports.VideoInfo, error)

	ProbedPath string
}

func (m *OutputProbe) Probe(path string) (*ports.VideoInfo, error) {
	m.ProbedPath = path
	if m.ProbeFunc != nil {
		return m.ProbeFunc(path)
	}
	return &ports.VideoInfo{Codec: "avc1"}, nil
}

var _ ports.OutputProbe = (*OutputProbe)(nil)
