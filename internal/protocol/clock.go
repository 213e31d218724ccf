package protocol

import "time"

// Clock is a monotonic millisecond counter. Values never decrease.
type Clock interface {
	NowMs() int64
}

// SystemClock counts milliseconds since it was created using the runtime's
// monotonic clock, so wall-clock steps do not affect it.
type SystemClock struct{ start time.Time }

func NewSystemClock() *SystemClock { return &SystemClock{start: time.Now()} }

func (c *SystemClock) NowMs() int64 { return time.Since(c.start).Milliseconds() }
