package telemetry

import (
	"github.com/schedlab/cadence/sched"
)

// A TickSample is one finished tick, as stored in the ticks table.
type TickSample struct {
	Tick     uint64
	Time     float64
	WallTime float64
	Ran      int32
	Skipped  int32
	Failed   int32
	Error    string
}

// A SystemSample is one system's outcome within one tick, as stored in the
// system_runs table.
type SystemSample struct {
	Tick   uint64
	Stage  int32
	Name   string
	Status string
	Detail string
}

// A Collector is a scheduler hook that records one row per tick and one row
// per system outcome. Attach it with the scheduler's AcceptHook.
type Collector struct {
	recorder Recorder

	tick  uint64
	stage int32
}

// NewCollector creates a Collector and its ticks and system_runs tables.
func NewCollector(recorder Recorder) *Collector {
	c := &Collector{recorder: recorder}

	c.recorder.CreateTable("ticks", TickSample{})
	c.recorder.CreateTable("system_runs", SystemSample{})

	return c
}

// Func records rows as the scheduler passes the hook positions. All
// positions fire on the goroutine that drives the tick, so the collector
// needs no locking of its own.
func (c *Collector) Func(ctx sched.HookCtx) {
	switch ctx.Pos {
	case sched.HookPosTickStart:
		c.tick = ctx.Item.(uint64)
		c.stage = -1
	case sched.HookPosStageStart:
		c.stage = int32(ctx.Item.(int))
	case sched.HookPosSystemEnd:
		c.insertSystem(ctx.Detail.(string), "Ran", "")
	case sched.HookPosSystemSkip:
		c.insertSystem(c.systemName(ctx), "Skipped", ctx.Detail.(string))
	case sched.HookPosSystemFail:
		c.insertSystem(c.systemName(ctx), "Failed",
			ctx.Detail.(error).Error())
	case sched.HookPosTickEnd:
		c.insertTick(ctx.Item.(sched.TickResult))
	}
}

// systemName resolves the name of the system a skip or failure position
// points at. Those positions carry the reason in Detail, not the name.
func (c *Collector) systemName(ctx sched.HookCtx) string {
	id := ctx.Item.(sched.SystemID)

	scheduler, ok := ctx.Domain.(*sched.Scheduler)
	if !ok {
		return id.String()
	}

	return scheduler.Registry().Name(id)
}

func (c *Collector) insertSystem(name, status, detail string) {
	c.recorder.InsertData("system_runs", SystemSample{
		Tick:   c.tick,
		Stage:  c.stage,
		Name:   name,
		Status: status,
		Detail: detail,
	})
}

func (c *Collector) insertTick(res sched.TickResult) {
	skipped, failed := int32(0), int32(0)

	for _, status := range res.Statuses {
		switch status {
		case sched.StatusSkipped:
			skipped++
		case sched.StatusFailed:
			failed++
		}
	}

	errStr := ""
	if res.Err != nil {
		errStr = res.Err.Error()
	}

	c.recorder.InsertData("ticks", TickSample{
		Tick:     res.Tick,
		Time:     float64(res.Time),
		WallTime: res.WallDuration.Seconds(),
		Ran:      int32(res.Ran),
		Skipped:  skipped,
		Failed:   failed,
		Error:    errStr,
	})
}
