// Package cadence assembles a ready-to-run engine. It wires a scheduler over
// a system registry to telemetry recording, task tracing, and the web
// monitor, so that an application only registers its systems and ticks.
package cadence

import (
	"context"

	"github.com/schedlab/cadence/monitoring"
	"github.com/schedlab/cadence/sched"
	"github.com/schedlab/cadence/telemetry"
	"github.com/schedlab/cadence/tracing"
)

// An Engine bundles a scheduler with the recording and monitoring services
// that an application normally wires by hand. Use MakeBuilder to create one.
type Engine struct {
	id string

	registry  *sched.Registry
	scheduler *sched.Scheduler

	recorder    telemetry.Recorder
	runRecorder *telemetry.RunRecorder
	monitor     *monitoring.Monitor
	visTracer   *tracing.DBTracer
}

// ID returns the unique identifier of this engine instance. The default
// output file name is derived from it.
func (e *Engine) ID() string {
	return e.id
}

// Registry returns the system registry.
func (e *Engine) Registry() *sched.Registry {
	return e.registry
}

// Scheduler returns the scheduler.
func (e *Engine) Scheduler() *sched.Scheduler {
	return e.scheduler
}

// Recorder returns the recorder that collects tick and system samples.
func (e *Engine) Recorder() telemetry.Recorder {
	return e.recorder
}

// Monitor returns the web monitor, or nil when monitoring is disabled.
func (e *Engine) Monitor() *monitoring.Monitor {
	return e.monitor
}

// VisTracer returns the database tracer that feeds the timeline view.
func (e *Engine) VisTracer() *tracing.DBTracer {
	return e.visTracer
}

// Register adds a system to the registry.
func (e *Engine) Register(desc sched.Desc) (sched.SystemID, error) {
	return e.registry.Register(desc)
}

// Progress runs one tick with the given virtual time delta.
func (e *Engine) Progress(dt sched.VTimeInSec) sched.TickResult {
	return e.scheduler.Progress(dt)
}

// Run executes ticks of a fixed delta until the count is reached, the
// context is cancelled, or plan compilation fails. When monitoring is on,
// the run shows up as a progress bar on the dashboard.
func (e *Engine) Run(
	ctx context.Context,
	ticks uint64,
	dt sched.VTimeInSec,
) sched.TickResult {
	var bar *monitoring.ProgressBar
	if e.monitor != nil {
		bar = e.monitor.CreateProgressBar("run", ticks)
		defer e.monitor.CompleteProgressBar(bar)
	}

	var last sched.TickResult

	for i := uint64(0); i < ticks; i++ {
		last = e.scheduler.ProgressContext(ctx, dt)

		if bar != nil {
			bar.IncrementFinished(1)
		}

		if last.Statuses == nil || ctx.Err() != nil {
			break
		}
	}

	return last
}

// Terminate closes the run record, stops the scheduler workers, and flushes
// the recorder.
func (e *Engine) Terminate() {
	e.runRecorder.End()
	e.scheduler.Shutdown()

	err := e.recorder.Close()
	if err != nil {
		panic(err)
	}
}
