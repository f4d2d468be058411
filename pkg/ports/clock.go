package ports

import "time"

// Clock provides wall-clock time. Tests substitute a deterministic clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns the clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}
