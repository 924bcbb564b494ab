package tracing

import (
	"time"

	"github.com/schedlab/cadence/sched"
)

// A WallClock tells host time as seconds since its creation. Virtual time
// stands still while a tick executes, so tracers that resolve individual
// activations within a tick need wall time instead.
type WallClock struct {
	epoch time.Time
}

// NewWallClock creates a WallClock with its epoch at now.
func NewWallClock() *WallClock {
	return &WallClock{epoch: time.Now()}
}

// CurrentTime returns the seconds elapsed since the epoch.
func (c *WallClock) CurrentTime() sched.VTimeInSec {
	return sched.VTimeInSec(time.Since(c.epoch).Seconds())
}
