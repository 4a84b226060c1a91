package store

import "sync/atomic"

// Clock hands out mutation sequence numbers. The zero value starts at 0 and
// the first mutation gets 1.
type Clock struct {
	last atomic.Int64
}

// NewClockAt returns a clock whose next mutation is last+1, for stores that
// append to an existing journal.
func NewClockAt(last int64) *Clock {
	c := new(Clock)
	c.last.Store(last)
	return c
}

// Advance stamps a new mutation and returns its seq.
func (c *Clock) Advance() int64 { return c.last.Add(1) }

// Last is the seq of the most recent mutation, 0 before the first.
func (c *Clock) Last() int64 { return c.last.Load() }
