package engine

import "sync/atomic"

// Clock is the store's logical clock.
//
// Every committed transition is stamped with a strictly increasing seq from
// this clock, so records and traces order by seq and never by wall time.
// A failed dispatch does not advance it.
//
// Thread-safety: Clock is safe for concurrent use. Several stores may share
// one clock to get a single global order.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
