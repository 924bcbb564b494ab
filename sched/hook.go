package sched

// HookPos defines the enum of possible hooking positions
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)
}

// HookPosTickStart triggers at the beginning of a tick, after the clock has
// advanced and before any stage runs. Item is the tick sequence number.
var HookPosTickStart = &HookPos{Name: "TickStart"}

// HookPosTickEnd triggers after the last stage of a tick. Item is the
// TickResult.
var HookPosTickEnd = &HookPos{Name: "TickEnd"}

// HookPosStageStart triggers before a stage dispatches. Item is the stage
// index, Detail the Stage.
var HookPosStageStart = &HookPos{Name: "StageStart"}

// HookPosStageEnd triggers after a stage's barrier. Item is the stage index,
// Detail the Stage.
var HookPosStageEnd = &HookPos{Name: "StageEnd"}

// HookPosSystemStart triggers right before a system's callback runs on its
// worker. Item is the SystemID, Detail the system name.
var HookPosSystemStart = &HookPos{Name: "SystemStart"}

// HookPosSystemEnd triggers after a system's callback returns. Item is the
// SystemID, Detail the system name.
var HookPosSystemEnd = &HookPos{Name: "SystemEnd"}

// HookPosSystemSkip triggers when gating decides a system will not run this
// tick. Item is the SystemID, Detail the skip reason string.
var HookPosSystemSkip = &HookPos{Name: "SystemSkip"}

// HookPosSystemFail triggers when a system's callback errors or panics. Item
// is the SystemID, Detail the CallbackFailureError.
var HookPosSystemFail = &HookPos{Name: "SystemFail"}

// HookPosPlanBuilt triggers when the planner produces a new plan. Item is
// the *Plan.
var HookPosPlanBuilt = &HookPos{Name: "PlanBuilt"}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

// AcceptHook register a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// InvokeHook triggers the register Hooks
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
