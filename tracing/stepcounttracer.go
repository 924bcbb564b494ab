package tracing

import (
	"sync"
)

// StepCountTracer counts how many times each step milestone is reported by
// the traced tasks.
type StepCountTracer struct {
	filter TaskFilter

	lock          sync.Mutex
	inflightTasks map[string]Task
	seenSteps     map[string]map[string]bool

	stepNames  []string
	stepCounts map[string]uint64
	taskCounts map[string]uint64
}

// NewStepCountTracer creates a new StepCountTracer.
func NewStepCountTracer(filter TaskFilter) *StepCountTracer {
	t := &StepCountTracer{
		filter:        filter,
		inflightTasks: make(map[string]Task),
		seenSteps:     make(map[string]map[string]bool),
		stepCounts:    make(map[string]uint64),
		taskCounts:    make(map[string]uint64),
	}

	return t
}

// StepNames returns the step names seen so far, in first-seen order.
func (t *StepCountTracer) StepNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.stepNames
}

// StepCount returns the number of times the step was reported.
func (t *StepCountTracer) StepCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.stepCounts[stepName]
}

// TaskCount returns the number of distinct tasks that reported the step.
func (t *StepCountTracer) TaskCount(stepName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCounts[stepName]
}

// StartTask starts counting the steps of the task.
func (t *StepCountTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	t.inflightTasks[task.ID] = task
}

// StepTask counts the steps carried by the task record.
func (t *StepCountTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.inflightTasks[task.ID]; !ok {
		return
	}

	for _, step := range task.Steps {
		t.countStep(task.ID, step.What)
	}
}

func (t *StepCountTracer) countStep(taskID, what string) {
	if _, ok := t.stepCounts[what]; !ok {
		t.stepNames = append(t.stepNames, what)
	}

	t.stepCounts[what]++

	seen, ok := t.seenSteps[taskID]
	if !ok {
		seen = make(map[string]bool)
		t.seenSteps[taskID] = seen
	}

	if !seen[what] {
		seen[what] = true
		t.taskCounts[what]++
	}
}

// EndTask stops counting the steps of the task.
func (t *StepCountTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.inflightTasks, task.ID)
	delete(t.seenSteps, task.ID)
}
