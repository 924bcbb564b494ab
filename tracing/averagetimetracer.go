package tracing

import (
	"sync"

	"github.com/schedlab/cadence/sched"
)

// AverageTimeTracer can collect the average time of the traced tasks.
type AverageTimeTracer struct {
	timeTeller sched.TimeTeller
	filter     TaskFilter

	lock          sync.Mutex
	averageTime   sched.VTimeInSec
	taskCount     uint64
	inflightTasks map[string]Task
}

// NewAverageTimeTracer creates a new AverageTimeTracer.
func NewAverageTimeTracer(
	timeTeller sched.TimeTeller,
	filter TaskFilter,
) *AverageTimeTracer {
	t := &AverageTimeTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]Task),
	}

	return t
}

// AverageTime returns the average duration of the completed tasks.
func (t *AverageTimeTracer) AverageTime() sched.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.averageTime
}

// TotalCount returns the number of completed tasks.
func (t *AverageTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// StartTask records the task start time.
func (t *AverageTimeTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	task.StartTime = t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	t.inflightTasks[task.ID] = task
}

// StepTask does nothing.
func (t *AverageTimeTracer) StepTask(_ Task) {
	// Do nothing
}

// EndTask folds the task's duration into the running average.
func (t *AverageTimeTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	duration := t.timeTeller.CurrentTime() - originalTask.StartTime

	t.averageTime = (t.averageTime*sched.VTimeInSec(t.taskCount) + duration) /
		sched.VTimeInSec(t.taskCount+1)
	t.taskCount++

	delete(t.inflightTasks, task.ID)
}
