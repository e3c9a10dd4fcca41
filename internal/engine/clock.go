package engine

import "sync/atomic"

// Clock numbers the ticks of a run: the first tick is seq 1 and Current is
// 0 until it runs. The major/minor cadence is a function of seq, so a
// replay reproduces the live cadence without any wall time.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first tick is 1.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a clock whose next tick is last+1, for continuing a
// run recorded up to seq last.
func NewClockAt(last int64) *Clock {
	c := &Clock{}
	c.seq.Store(last)
	return c
}

// Next claims the seq of a new tick.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current is the seq of the latest tick.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
