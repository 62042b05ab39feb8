package clock

import "time"

// Clock is the single source of "now" for session timestamps.
// Solve times are compared across players, so everything that stamps a
// session must share one Clock.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current UTC time
func (c *RealClock) Now() time.Time {
	return time.Now().UTC()
}
