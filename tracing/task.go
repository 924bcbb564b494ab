// Package tracing traces tasks: the spans of work an engine performs, such
// as ticks, stages, and system activations.
package tracing

import "github.com/schedlab/cadence/sched"

// A TaskStep is a milestone in the processing of a task.
type TaskStep struct {
	Time sched.VTimeInSec `json:"time"`
	What string           `json:"what"`
}

// A Task is one traced span of work.
type Task struct {
	ID        string           `json:"id"`
	ParentID  string           `json:"parent_id"`
	Kind      string           `json:"kind"`
	What      string           `json:"what"`
	Where     string           `json:"where"`
	StartTime sched.VTimeInSec `json:"start_time"`
	EndTime   sched.VTimeInSec `json:"end_time"`
	Steps     []TaskStep       `json:"steps"`
	Detail    any              `json:"-"`
}

// A TaskFilter decides whether a tracer should consider a task. The task is
// considered when the filter returns true.
type TaskFilter func(t Task) bool
