package api

import (
	"sync/atomic"
	"time"
)

// stampClock hands out nanosecond command timestamps that never repeat or go
// backwards, even when the wall clock does. The read-model updater orders
// writes to the same field by these values.
type stampClock struct {
	now  func() time.Time
	last atomic.Int64
}

var commandClock = &stampClock{now: time.Now}

// reserve claims n consecutive timestamps and returns the first. n <= 0
// reserves nothing and returns 0.
func (c *stampClock) reserve(n int) int64 {
	if n <= 0 {
		return 0
	}
	for {
		last := c.last.Load()
		first := max(c.now().UnixNano(), last+1)
		if c.last.CompareAndSwap(last, first+int64(n)-1) {
			return first
		}
	}
}
