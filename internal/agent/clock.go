package agent

import "time"

// Clock carries the session's time-acceleration factor: the ratio of
// simulated to real elapsed time. It is fixed at startup and read-only
// for the life of the session.
type Clock struct {
	factor float64
	start  time.Time
}

// NewClock creates a clock with the given acceleration factor. Factors
// at or below zero fall back to real time.
func NewClock(factor float64) Clock {
	if factor <= 0 {
		factor = 1
	}
	return Clock{factor: factor, start: time.Now()}
}

// Factor returns the acceleration factor.
func (c Clock) Factor() float64 { return c.factor }

// Start returns the wall-clock instant the session began.
func (c Clock) Start() time.Time { return c.start }

// Scale converts a simulated duration into the real duration to wait:
// realInterval = simulatedInterval / factor. Results are floored at one
// millisecond so extreme factors cannot produce busy loops.
func (c Clock) Scale(sim time.Duration) time.Duration {
	if sim <= 0 {
		return sim
	}
	real := time.Duration(float64(sim) / c.factor)
	if real < time.Millisecond {
		real = time.Millisecond
	}
	return real
}

// Elapsed returns the simulated time elapsed since the session start.
func (c Clock) Elapsed() time.Duration {
	return time.Duration(float64(time.Since(c.start)) * c.factor)
}
