package tracing

import (
	"fmt"
	"sync"

	"github.com/tebeka/atexit"

	"github.com/schedlab/cadence/sched"
	"github.com/schedlab/cadence/telemetry"
)

// taskEntry is a task row as stored by the recorder backends. The location
// column is named Location because "where" is a reserved word in SQL.
type taskEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

// sessionEntry is one row of the trace_sessions index table.
type sessionEntry struct {
	TableName    string
	SessionStart float64
	SessionEnd   float64
}

// DBTracer stores tasks into a database through a telemetry Recorder. Tasks
// are only kept while a tracing session is open, so a long run can record a
// few windows of interest without drowning in data. Each session gets its
// own table, and the trace_sessions table indexes them.
type DBTracer struct {
	timeTeller sched.TimeTeller
	backend    telemetry.Recorder

	lock sync.Mutex

	startTime sched.VTimeInSec
	endTime   sched.VTimeInSec

	tracing      bool
	sessionCount int
	sessionTable string
	sessionStart sched.VTimeInSec

	inflightTasks map[string]Task
}

// NewDBTracer creates a DBTracer over the given backend. It creates the
// session index table immediately; the per-session task tables follow as
// sessions start.
func NewDBTracer(
	timeTeller sched.TimeTeller,
	backend telemetry.Recorder,
) *DBTracer {
	t := &DBTracer{
		timeTeller:    timeTeller,
		backend:       backend,
		inflightTasks: make(map[string]Task),
	}

	t.backend.CreateTable("trace_sessions", sessionEntry{})

	atexit.Register(func() { t.Terminate() })

	return t
}

// SetTimeRange limits recording to tasks that overlap the given window.
func (t *DBTracer) SetTimeRange(startTime, endTime sched.VTimeInSec) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.startTime = startTime
	t.endTime = endTime
}

// IsTracing reports whether a session is open.
func (t *DBTracer) IsTracing() bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.tracing
}

// StartTracing opens a new session. Only tasks that end while a session is
// open are recorded.
func (t *DBTracer) StartTracing() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.tracing {
		return
	}

	t.tracing = true
	t.sessionCount++
	t.sessionStart = t.timeTeller.CurrentTime()
	t.sessionTable = fmt.Sprintf("trace%d", t.sessionCount)
	t.inflightTasks = make(map[string]Task)

	t.backend.CreateTable(t.sessionTable, taskEntry{})
}

// StopTracing closes the session, adds it to the index, and records the
// tasks still in flight as ending now.
func (t *DBTracer) StopTracing() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.tracing {
		return
	}

	t.tracing = false
	sessionEnd := t.timeTeller.CurrentTime()

	t.backend.InsertData("trace_sessions", sessionEntry{
		TableName:    t.sessionTable,
		SessionStart: float64(t.sessionStart),
		SessionEnd:   float64(sessionEnd),
	})

	for _, task := range t.inflightTasks {
		task.EndTime = sessionEnd
		t.writeTask(task)
	}

	t.inflightTasks = make(map[string]Task)

	t.backend.Flush()
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	taskMustBeValid(task)

	task.StartTime = t.timeTeller.CurrentTime()
	if t.endTime > 0 && task.StartTime > t.endTime {
		return
	}

	t.inflightTasks[task.ID] = task
}

func taskMustBeValid(task Task) {
	if task.ID == "" {
		panic("task ID must be set")
	}

	if task.Kind == "" {
		panic("task kind must be set")
	}

	if task.What == "" {
		panic("task what must be set")
	}

	if task.Where == "" {
		panic("task where must be set")
	}
}

// StepTask does nothing.
func (t *DBTracer) StepTask(_ Task) {
	// Do nothing
}

// EndTask writes the task into the session table if a session is open.
func (t *DBTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	endTime := t.timeTeller.CurrentTime()
	if t.startTime > 0 && endTime < t.startTime {
		delete(t.inflightTasks, task.ID)
		return
	}

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}

	delete(t.inflightTasks, task.ID)

	if !t.tracing {
		return
	}

	originalTask.EndTime = endTime
	t.writeTask(originalTask)
}

func (t *DBTracer) writeTask(task Task) {
	t.backend.InsertData(t.sessionTable, taskEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Where,
		StartTime: float64(task.StartTime),
		EndTime:   float64(task.EndTime),
	})
}

// Terminate drops the tracer state and flushes the backend. It is also
// registered with atexit, so an interrupted run keeps its recorded
// sessions.
func (t *DBTracer) Terminate() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.inflightTasks = nil
	t.backend.Flush()
}
