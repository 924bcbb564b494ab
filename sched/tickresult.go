package sched

import "time"

// A Status is the state of one system within one tick.
type Status int

// The per-tick system states. Every system starts a tick Pending. Gating
// moves it to Skipped or Eligible. Dispatch moves Eligible to Ran or Failed.
// A system left Pending at the end of a tick was never reached because the
// tick aborted.
const (
	StatusPending Status = iota
	StatusSkipped
	StatusEligible
	StatusRan
	StatusFailed
)

var statusNames = [...]string{"Pending", "Skipped", "Eligible", "Ran", "Failed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}

	return statusNames[s]
}

// A TickResult summarizes one Progress call.
type TickResult struct {
	// Tick is the sequence number of the tick, starting from 1.
	Tick uint64

	// Time is the virtual time after the tick.
	Time VTimeInSec

	// WallDuration is the host time the tick took.
	WallDuration time.Duration

	// Statuses maps every registered system to its final state for the
	// tick.
	Statuses map[SystemID]Status

	// Ran counts the systems that reached StatusRan.
	Ran int

	// Err is the first error of the tick: a planning error, the first
	// callback failure, or the context error that aborted the tick.
	Err error
}
