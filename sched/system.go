package sched

// An Action is the callback of a system. It is invoked once per activation
// with the matched data. Returning an error marks the system Failed for the
// tick and surfaces a CallbackFailureError on the TickResult.
type Action func(it *Iter) error

// A TickSource names what drives a rate-gated system. The zero value is the
// engine tick itself.
type TickSource struct {
	system SystemID
	timer  TimerID
}

// SystemSource makes a tick source that fires whenever the given system
// runs.
func SystemSource(id SystemID) TickSource {
	return TickSource{system: id}
}

// TimerSource makes a tick source that fires whenever the given timer
// elapses.
func TimerSource(id TimerID) TickSource {
	return TickSource{timer: id}
}

// IsEngineTick reports whether the source is the engine tick.
func (s TickSource) IsEngineTick() bool {
	return s.system == NilSystem && s.timer == NilTimer
}

// A Desc declares a system. Register copies the descriptor, so a Desc can be
// reused after registration.
type Desc struct {
	// Name appears in plans, errors, hooks, and telemetry. When empty, the
	// registry assigns "system<index>".
	Name string

	// Query declares the data the system works on. It may be nil for
	// systems that touch no storage; a nil Query has an empty footprint and
	// an empty batch list.
	Query Query

	// Action is the callback. It must not be nil.
	Action Action

	// Phase places the system in the tick. The zero value is the implicit
	// default phase, which runs after every built-in phase.
	Phase Phase

	// MultiThreaded lets the activation run on any pool worker, with the
	// query's batches split across workers. When false, the activation is
	// pinned to the main worker even when its stage runs other systems in
	// parallel.
	MultiThreaded bool

	// Immediate marks a system that performs structural changes and must
	// run alone, with no other system in flight.
	Immediate bool

	// Interval throttles the system to at most one activation per Interval
	// of virtual time. Zero means every tick.
	Interval VTimeInSec

	// Rate makes the system run once every Rate firings of TickSource.
	// Zero and one both mean every firing.
	Rate uint

	// TickSource drives Rate. The zero value is the engine tick.
	TickSource TickSource

	// After, Before, and DependsOn order this system against others.
	// DependsOn additionally skips this system on ticks where the
	// dependency did not run.
	After     []SystemID
	Before    []SystemID
	DependsOn []SystemID

	// Ctx is an opaque pointer surfaced on the Iter of every activation.
	Ctx interface{}
}
