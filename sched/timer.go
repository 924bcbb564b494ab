package sched

import (
	"fmt"
	"math"
	"sync"
)

type timerRecord struct {
	id          TimerID
	interval    VTimeInSec
	accumulator VTimeInSec
	running     bool

	// lastFired is the tick on which the timer last elapsed. Rate gating
	// compares it against the consumer's last observation.
	lastFired uint64
}

// A timerPool owns the dedicated tick-source timers of one scheduler. The
// scheduler elapses timers at the start of every tick, before any stage
// runs, so all systems of a tick observe the same firing state.
type timerPool struct {
	lock   sync.Mutex
	slots  *slotPool
	timers map[TimerID]*timerRecord
}

func newTimerPool() *timerPool {
	p := new(timerPool)
	p.slots = newSlotPool()
	p.timers = make(map[TimerID]*timerRecord)

	return p
}

func (p *timerPool) add(interval VTimeInSec) (TimerID, error) {
	if interval <= 0 || math.IsNaN(float64(interval)) {
		return NilTimer, fmt.Errorf("invalid timer interval %f", interval)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	index, generation := p.slots.acquire()
	id := makeTimerID(index, generation)
	p.timers[id] = &timerRecord{
		id:       id,
		interval: interval,
		running:  true,
	}

	return id, nil
}

func (p *timerPool) remove(id TimerID) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.timers[id]; !ok {
		return fmt.Errorf("timer %s does not exist", id)
	}

	delete(p.timers, id)
	p.slots.release(id.index())

	return nil
}

func (p *timerPool) setRunning(id TimerID, running bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	t, ok := p.timers[id]
	if !ok {
		return fmt.Errorf("timer %s does not exist", id)
	}

	t.running = running

	return nil
}

// reset zeroes the accumulated time so the timer starts a full interval.
func (p *timerPool) reset(id TimerID) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	t, ok := p.timers[id]
	if !ok {
		return fmt.Errorf("timer %s does not exist", id)
	}

	t.accumulator = 0

	return nil
}

// advance accrues dt on every running timer and fires the ones whose
// interval elapsed. A timer fires at most once per tick; the remainder
// carries forward, the same way system intervals do.
func (p *timerPool) advance(dt VTimeInSec, tick uint64) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, t := range p.timers {
		if !t.running {
			continue
		}

		t.accumulator += dt
		if t.accumulator >= t.interval {
			t.accumulator -= t.interval
			t.lastFired = tick
		}
	}
}

// lastFired returns the tick the timer last elapsed on. The second return
// is false when the timer no longer exists.
func (p *timerPool) lastFiredTick(id TimerID) (uint64, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	t, ok := p.timers[id]
	if !ok {
		return 0, false
	}

	return t.lastFired, true
}
