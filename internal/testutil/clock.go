package testutil

import (
	"sync"
	"time"
)

// StepClock is a settable wall clock for scenario runs.
//
// Each scenario step moves the clock to the step's declared time before
// loading, so run starts (and therefore watermarks and valid_from values)
// are reproducible across runs and golden comparisons.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

// NewStepClock creates a clock stopped at start.
func NewStepClock(start time.Time) *StepClock {
	start = start.UTC()
	return &StepClock{start: start, now: start}
}

// Now returns the current step time. Implements engine.Clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is allowed; scenarios use it
// to exercise skew re-extraction.
func (c *StepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Reset moves the clock back to its start time.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
