package sched

import (
	"log"
)

// A LogHook is a hook that is responsible for recording information from the
// running scheduler.
type LogHook interface {
	Hook
}

// LogHookBase provides the common logic for all LogHooks.
type LogHookBase struct {
	*log.Logger
}

// TickLogger is a hook that writes one line per tick, plus one line per
// system failure.
type TickLogger struct {
	LogHookBase
}

// NewTickLogger returns a TickLogger that writes into the given logger.
func NewTickLogger(logger *log.Logger) *TickLogger {
	h := new(TickLogger)
	h.Logger = logger

	return h
}

// Func writes the tick information into the logger.
func (h *TickLogger) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTickEnd:
		r, ok := ctx.Item.(TickResult)
		if !ok {
			return
		}

		h.Logger.Printf("tick %d @ %.10f, ran %d, wall %s",
			r.Tick, r.Time, r.Ran, r.WallDuration)
	case HookPosSystemFail:
		err, ok := ctx.Detail.(error)
		if !ok {
			return
		}

		h.Logger.Printf("%s", err)
	}
}
