package engine

import "sync/atomic"

// Clock is the logical cycle counter.
//
// Every Step advances it by one, so cycle numbers start at 1 and are
// strictly increasing. Wall-clock time never enters a trace.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// although only the goroutine driving Step calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific cycle.
// Used to continue a recorded run.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next cycle number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued cycle number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
