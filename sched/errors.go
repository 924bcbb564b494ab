package sched

import (
	"fmt"
	"strings"
)

// A CyclicDependencyError reports a cycle in the ordering constraints. Cycle
// holds the name of every system on the cycle, in cycle order, starting from
// the earliest-registered participant.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency: %s -> %s",
		strings.Join(e.Cycle, " -> "), e.Cycle[0])
}

// An UnschedulableConflictError reports two systems whose requirements can
// never be satisfied by any stage assignment. The planner excludes System
// from the plan and keeps Other.
type UnschedulableConflictError struct {
	System string
	Other  string
	Reason string
}

func (e *UnschedulableConflictError) Error() string {
	return fmt.Sprintf("cannot schedule %s with %s: %s",
		e.System, e.Other, e.Reason)
}

// A CallbackFailureError wraps an error returned, or a panic raised, by a
// system callback. Stack is non-nil only for recovered panics.
type CallbackFailureError struct {
	System string
	Tick   uint64
	Err    error
	Stack  []byte
}

func (e *CallbackFailureError) Error() string {
	return fmt.Sprintf("system %s failed on tick %d: %s",
		e.System, e.Tick, e.Err)
}

func (e *CallbackFailureError) Unwrap() error {
	return e.Err
}

// An InvalidEdgeError reports an ordering edge that cannot be recorded, for
// example one pointing at a system that is not registered.
type InvalidEdgeError struct {
	From   string
	To     string
	Kind   EdgeKind
	Reason string
}

func (e *InvalidEdgeError) Error() string {
	return fmt.Sprintf("invalid %s edge %s -> %s: %s",
		e.Kind, e.From, e.To, e.Reason)
}
