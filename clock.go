package fixpoint

import "sync/atomic"

// Clock is the engine's monotone logical clock.
//
// Task ids and slot updates are stamped with strictly increasing sequence
// numbers from this clock. This ensures:
// - Deterministic ordering under the sequential backend (no wall-clock races)
// - A total order over trace journal rows
// - Causal relationships stay explicit
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
