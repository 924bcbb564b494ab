package tracing

import (
	"fmt"

	"github.com/schedlab/cadence/sched"
)

// EmitSchedulerTasks makes a scheduler publish a task for every tick, every
// stage, and every system activation, so that tracers attached with
// CollectTrace can measure them. Calling it again on the same scheduler does
// nothing.
func EmitSchedulerTasks(s *sched.Scheduler) {
	for _, hook := range s.Hooks {
		if _, ok := hook.(*schedulerTaskEmitter); ok {
			return
		}
	}

	s.AcceptHook(&schedulerTaskEmitter{scheduler: s})
}

// A schedulerTaskEmitter converts scheduler hook positions into task
// records. All positions fire on the goroutine that drives the tick, so the
// emitter keeps its cursor fields without locking.
type schedulerTaskEmitter struct {
	scheduler *sched.Scheduler

	tickID  string
	stageID string
}

func (e *schedulerTaskEmitter) Func(ctx sched.HookCtx) {
	switch ctx.Pos {
	case sched.HookPosTickStart:
		tick := ctx.Item.(uint64)
		e.tickID = fmt.Sprintf("%s.tick.%d", e.scheduler.Name(), tick)

		StartTask(e.tickID, "", e.scheduler,
			"tick", fmt.Sprintf("tick %d", tick), nil)
	case sched.HookPosTickEnd:
		EndTask(e.tickID, e.scheduler)
	case sched.HookPosStageStart:
		stage := ctx.Item.(int)
		e.stageID = fmt.Sprintf("%s.stage.%d", e.tickID, stage)

		StartTask(e.stageID, e.tickID, e.scheduler,
			"stage", fmt.Sprintf("stage %d", stage), ctx.Detail)
	case sched.HookPosStageEnd:
		EndTask(e.stageID, e.scheduler)
	case sched.HookPosSystemStart:
		id := ctx.Item.(sched.SystemID)

		StartTask(e.systemTaskID(id), e.stageID, e.scheduler,
			"system", ctx.Detail.(string), nil)
	case sched.HookPosSystemEnd:
		EndTask(e.systemTaskID(ctx.Item.(sched.SystemID)), e.scheduler)
	case sched.HookPosSystemFail:
		EndTask(e.systemTaskID(ctx.Item.(sched.SystemID)), e.scheduler)
	}
}

func (e *schedulerTaskEmitter) systemTaskID(id sched.SystemID) string {
	return fmt.Sprintf("%s.sys.%s", e.tickID, id)
}
