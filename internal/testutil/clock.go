package testutil

import (
	"sync"
	"time"
)

// Epoch is the instant a DeterministicClock reports at sequence 0.
var Epoch = time.Date(2022, time.April, 25, 12, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe logical clock for tests. Each call to
// Now advances it by one second from Epoch, so task creation times are
// reproducible across runs.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

// NewDeterministicClock creates a clock at sequence 0.
//
// The first call to Next() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next increments and returns the next sequence number.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now advances the clock and returns Epoch plus that many seconds. It
// matches the func() time.Time shape synth.Local.WithClock takes.
func (c *DeterministicClock) Now() time.Time {
	return Epoch.Add(time.Duration(c.Next()) * time.Second)
}

// Reset resets the clock to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
