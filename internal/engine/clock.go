package engine

import "sync/atomic"

// Clock issues the strictly increasing sequence numbers that order local
// mutations. Later writes to the same field supersede earlier ones by this
// ordering, so the assignment must be race-free even though the engine
// itself serializes writes.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a specific sequence number.
// Used at startup to continue past the recovered mutation queue.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
