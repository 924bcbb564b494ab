package tracing

import (
	"container/list"
	"sync"

	"github.com/schedlab/cadence/sched"
)

type timeSpan struct {
	start, end sched.VTimeInSec
}

// BusyTimeTracer measures the time that the traced tasks cover. Overlapping
// tasks count once.
type BusyTimeTracer struct {
	timeTeller sched.TimeTeller
	filter     TaskFilter

	lock          sync.Mutex
	inflightTasks map[string]Task
	spans         *list.List
}

// NewBusyTimeTracer creates a new BusyTimeTracer.
func NewBusyTimeTracer(
	timeTeller sched.TimeTeller,
	filter TaskFilter,
) *BusyTimeTracer {
	t := &BusyTimeTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]Task),
		spans:         list.New(),
	}

	return t
}

// BusyTime returns the total time has been spent on the traced tasks,
// counting overlapped spans once.
func (t *BusyTimeTracer) BusyTime() sched.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	total := sched.VTimeInSec(0)
	for e := t.spans.Front(); e != nil; e = e.Next() {
		span := e.Value.(timeSpan)
		total += span.end - span.start
	}

	return total
}

// TerminateAllTasks marks all the tasks as completed at the given time.
func (t *BusyTimeTracer) TerminateAllTasks(now sched.VTimeInSec) {
	t.lock.Lock()
	defer t.lock.Unlock()

	for _, task := range t.inflightTasks {
		t.addSpan(timeSpan{start: task.StartTime, end: now})
	}

	t.inflightTasks = make(map[string]Task)
}

// StartTask records the task start time.
func (t *BusyTimeTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	task.StartTime = t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	t.inflightTasks[task.ID] = task
}

// StepTask does nothing.
func (t *BusyTimeTracer) StepTask(_ Task) {
	// Do nothing
}

// EndTask records the end of the task and merges its span into the covered
// time.
func (t *BusyTimeTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	delete(t.inflightTasks, task.ID)

	t.addSpan(timeSpan{
		start: originalTask.StartTime,
		end:   t.timeTeller.CurrentTime(),
	})
}

// addSpan inserts a span into the ordered span list, merging it with every
// span it overlaps.
func (t *BusyTimeTracer) addSpan(span timeSpan) {
	e := t.spans.Front()
	for e != nil && e.Value.(timeSpan).end < span.start {
		e = e.Next()
	}

	if e == nil {
		t.spans.PushBack(span)
		return
	}

	cur := e.Value.(timeSpan)
	if span.end < cur.start {
		t.spans.InsertBefore(span, e)
		return
	}

	if span.start < cur.start {
		cur.start = span.start
	}

	if span.end > cur.end {
		cur.end = span.end
	}

	// The grown span may now cover spans that follow it.
	next := e.Next()
	for next != nil && next.Value.(timeSpan).start <= cur.end {
		n := next.Value.(timeSpan)
		if n.end > cur.end {
			cur.end = n.end
		}

		after := next.Next()
		t.spans.Remove(next)
		next = after
	}

	e.Value = cur
}
