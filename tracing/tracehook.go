package tracing

import "github.com/schedlab/cadence/sched"

// CollectTrace attaches a tracer to a domain so the tracer sees every task
// recorded on it.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	h := traceHook{t: tracer}
	domain.AcceptHook(&h)
}

// A traceHook forwards task records to one tracer.
type traceHook struct {
	t Tracer
}

// Func calls the tracer when the hook is triggered at a task position.
func (h *traceHook) Func(ctx sched.HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		h.t.StartTask(ctx.Item.(Task))
	case HookPosTaskStep:
		h.t.StepTask(ctx.Item.(Task))
	case HookPosTaskEnd:
		h.t.EndTask(ctx.Item.(Task))
	}
}
