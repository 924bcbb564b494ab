package sched

// An Iter carries one activation's worth of work into a system callback.
type Iter struct {
	// System and Name identify the activated system.
	System SystemID
	Name   string

	// Batches holds the data matched by the system's query. For a
	// multi-threaded system this is the slice assigned to one worker, not
	// the full match.
	Batches []Batch

	// Delta is the virtual time passed to Progress for this tick.
	Delta VTimeInSec

	// Tick is the sequence number of the current tick.
	Tick uint64

	// Worker is the index of the worker running this activation. The main
	// worker is index 0.
	Worker int

	// Ctx is the pointer given at registration.
	Ctx interface{}
}

// EntityCount returns the number of entities across all batches of the
// activation.
func (it *Iter) EntityCount() int {
	n := 0
	for _, b := range it.Batches {
		n += len(b.Entities)
	}

	return n
}
