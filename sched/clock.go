package sched

import (
	"log"
	"math"
	"sync"
)

// VTimeInSec defines the virtual time in seconds. Virtual time only moves
// when Progress is called, by the delta the caller passes in.
type VTimeInSec float64

// TimeTeller can be used to get the current virtual time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// TickTeller can be used to get the sequence number of the current tick. The
// first tick is 1. A value of 0 means the engine has not ticked yet.
type TickTeller interface {
	CurrentTick() uint64
}

// A Clock keeps the virtual time and the tick count of an engine. The
// scheduler advances it; other goroutines, such as monitor handlers, may
// read it at any time.
type Clock struct {
	lock sync.RWMutex
	now  VTimeInSec
	tick uint64
}

// NewClock creates a Clock with time 0 and tick 0.
func NewClock() *Clock {
	c := new(Clock)
	return c
}

// CurrentTime returns the current virtual time.
func (c *Clock) CurrentTime() VTimeInSec {
	c.lock.RLock()
	now := c.now
	c.lock.RUnlock()

	return now
}

// CurrentTick returns the sequence number of the current tick.
func (c *Clock) CurrentTick() uint64 {
	c.lock.RLock()
	tick := c.tick
	c.lock.RUnlock()

	return tick
}

// Advance moves the virtual time forward by dt and bumps the tick count. A
// negative or NaN dt is a programmer error.
func (c *Clock) Advance(dt VTimeInSec) {
	if math.IsNaN(float64(dt)) || dt < 0 {
		log.Panicf("invalid time delta %f", dt)
	}

	c.lock.Lock()
	c.now += dt
	c.tick++
	c.lock.Unlock()
}
