package gbjob

import (
	"math"
	"sync/atomic"
)

// Counter synchronizes work between jobs in a System. It is incremented
// for every job submitted against it and decremented when each finishes.
// Jobs waiting on a Counter unblock once it reaches zero. A Counter must
// outlive every job run or waiting against it, and belongs to exactly one
// System. Grounded on gb::JobCounter (job_counter.h).
type Counter struct {
	n atomic.Int32
}

// NewCounter returns a zeroed Counter ready to use.
func NewCounter() *Counter {
	return &Counter{}
}

// Get returns the counter's current value.
func (c *Counter) Get() int32 {
	return c.n.Load()
}

// increment reports whether it succeeded; it refuses to wrap past
// math.MaxInt32, a case the original leaves undefined.
func (c *Counter) increment() bool {
	for {
		v := c.n.Load()
		if v == math.MaxInt32 {
			return false
		}
		if c.n.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

func (c *Counter) decrement() int32 {
	return c.n.Add(-1)
}
