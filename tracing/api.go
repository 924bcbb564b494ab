package tracing

import (
	"github.com/schedlab/cadence/sched"
)

// NamedHookable is a named domain that tasks can be recorded on. Tracers
// attach to it as hooks.
type NamedHookable interface {
	sched.Hookable

	Name() string
	InvokeHook(ctx sched.HookCtx)
}

// The hook positions that carry task records to attached tracers.
var (
	HookPosTaskStart = &sched.HookPos{Name: "TaskStart"}
	HookPosTaskStep  = &sched.HookPos{Name: "TaskStep"}
	HookPosTaskEnd   = &sched.HookPos{Name: "TaskEnd"}
)

// StartTask notifies the hooks attached to the domain about the start of a
// task. The task's location is the domain's name.
func StartTask(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	detail any,
) {
	StartTaskWithSpecificLocation(
		id, parentID, domain, kind, what,
		domain.Name(),
		detail,
	)
}

// StartTaskWithSpecificLocation notifies the hooks attached to the domain
// about the start of a task, overriding the recorded location.
func StartTaskWithSpecificLocation(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	location string,
	detail any,
) {
	allRequiredFieldsMustBeNotEmpty(id, domain, kind, what)
	domainMustHaveName(domain)

	task := Task{
		ID:       id,
		ParentID: parentID,
		Kind:     kind,
		What:     what,
		Where:    location,
		Detail:   detail,
	}
	ctx := sched.HookCtx{
		Domain: domain,
		Pos:    HookPosTaskStart,
		Item:   task,
	}
	domain.InvokeHook(ctx)
}

// AddTaskStep marks that a milestone has been reached while processing a
// task.
func AddTaskStep(id string, domain NamedHookable, what string) {
	step := TaskStep{What: what}
	task := Task{
		ID:    id,
		Steps: []TaskStep{step},
	}
	ctx := sched.HookCtx{
		Domain: domain,
		Pos:    HookPosTaskStep,
		Item:   task,
	}
	domain.InvokeHook(ctx)
}

// EndTask notifies the hooks attached to the domain about the end of a task.
func EndTask(id string, domain NamedHookable) {
	task := Task{ID: id}
	ctx := sched.HookCtx{
		Domain: domain,
		Pos:    HookPosTaskEnd,
		Item:   task,
	}
	domain.InvokeHook(ctx)
}

func allRequiredFieldsMustBeNotEmpty(
	id string,
	domain NamedHookable,
	kind string,
	what string,
) {
	if id == "" {
		panic("id must not be empty")
	}

	if domain == nil {
		panic("domain must not be nil")
	}

	if kind == "" {
		panic("kind must not be empty")
	}

	if what == "" {
		panic("what must not be empty")
	}
}

func domainMustHaveName(domain NamedHookable) {
	if domain.Name() == "" {
		panic("domain must have a name")
	}
}
