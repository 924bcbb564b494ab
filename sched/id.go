package sched

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// A SystemID is the handle of a registered system. It packs a slot index and
// a generation count, so the handle of a deregistered system never aliases
// the handle of a system that later reuses the slot.
type SystemID uint64

// NilSystem is the zero SystemID. It never refers to a registered system.
const NilSystem SystemID = 0

func makeSystemID(index, generation uint32) SystemID {
	return SystemID(uint64(generation)<<32 | uint64(index))
}

func (id SystemID) index() uint32 {
	return uint32(id)
}

func (id SystemID) generation() uint32 {
	return uint32(id >> 32)
}

// String formats the ID as index.generation for diagnostics.
func (id SystemID) String() string {
	return fmt.Sprintf("%d.%d", id.index(), id.generation())
}

// A TimerID is the handle of a timer created with AddTimer. Timers share the
// generational encoding with systems but live in a separate slot space.
type TimerID uint64

// NilTimer is the zero TimerID.
const NilTimer TimerID = 0

func makeTimerID(index, generation uint32) TimerID {
	return TimerID(uint64(generation)<<32 | uint64(index))
}

func (id TimerID) index() uint32 {
	return uint32(id)
}

func (id TimerID) generation() uint32 {
	return uint32(id >> 32)
}

func (id TimerID) String() string {
	return fmt.Sprintf("t%d.%d", id.index(), id.generation())
}

// A slotPool hands out generational slot indices. Slot 0 is burned so that
// the zero handle stays invalid.
type slotPool struct {
	generations []uint32
	free        []uint32
}

func newSlotPool() *slotPool {
	p := new(slotPool)
	p.generations = make([]uint32, 1)
	return p
}

// acquire returns a slot index and its current generation.
func (p *slotPool) acquire() (uint32, uint32) {
	if n := len(p.free); n > 0 {
		index := p.free[n-1]
		p.free = p.free[:n-1]
		return index, p.generations[index]
	}

	index := uint32(len(p.generations))
	p.generations = append(p.generations, 0)

	return index, 0
}

// release retires a slot. The generation bumps so stale handles stop
// matching.
func (p *slotPool) release(index uint32) {
	if index == 0 || index >= uint32(len(p.generations)) {
		log.Panicf("releasing slot %d that was never acquired", index)
	}

	p.generations[index]++
	p.free = append(p.free, index)
}

// live reports whether the handle's generation matches the slot's current
// generation.
func (p *slotPool) live(index, generation uint32) bool {
	if index == 0 || index >= uint32(len(p.generations)) {
		return false
	}

	return p.generations[index] == generation
}

// An IDGenerator generates the string IDs used for engines, runs, and trace
// tasks.
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

var stringIDMutex sync.Mutex
var stringIDInstantiated bool
var stringIDGenerator IDGenerator

// UseSequentialIDs makes string IDs small sequential integers. Sequential
// IDs keep test output deterministic.
func UseSequentialIDs() {
	setStringIDGenerator(&sequentialIDGenerator{})
}

// UseXIDs makes string IDs globally unique xids. Unique IDs are needed when
// several engines record into the same telemetry store.
func UseXIDs() {
	setStringIDGenerator(xidGenerator{})
}

func setStringIDGenerator(g IDGenerator) {
	stringIDMutex.Lock()
	defer stringIDMutex.Unlock()

	if stringIDInstantiated {
		log.Panic("cannot change the ID generator after it has been used")
	}

	stringIDGenerator = g
	stringIDInstantiated = true
}

// GetIDGenerator returns the process-wide string ID generator, defaulting to
// sequential IDs on first use.
func GetIDGenerator() IDGenerator {
	stringIDMutex.Lock()
	defer stringIDMutex.Unlock()

	if !stringIDInstantiated {
		stringIDGenerator = &sequentialIDGenerator{}
		stringIDInstantiated = true
	}

	return stringIDGenerator
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	n := atomic.AddUint64(&g.nextID, 1)
	return strconv.FormatUint(n, 10)
}

type xidGenerator struct{}

func (g xidGenerator) Generate() string {
	return xid.New().String()
}
