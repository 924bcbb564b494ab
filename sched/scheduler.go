package sched

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// cadenceState is the per-system throttle bookkeeping. It survives plan
// rebuilds, so registering an unrelated system does not reset anyone's
// interval accumulator.
type cadenceState struct {
	accumulator  VTimeInSec
	counter      uint64
	lastObserved uint64
	lastRan      uint64
}

// An activation is one system's dispatch slot within a stage. Multi-threaded
// systems carry one Iter per batch chunk; everything else carries one Iter.
// Workers write errors into distinct slots, so activations need no lock.
type activation struct {
	member *planMember
	pinned bool
	iters  []*Iter
	errs   []error
}

// A Scheduler executes compiled plans tick by tick. It owns the clock, the
// timers, the worker pool, and the per-system cadence state. Gating and all
// status bookkeeping happen on the goroutine that calls Progress, which also
// serves as the main worker.
type Scheduler struct {
	HookableBase

	name     string
	registry *Registry
	clock    *Clock
	timers   *timerPool
	pool     *workerPool

	pauseLock sync.Mutex

	plan          *Plan
	planErr       error
	compileReport error
	planSeq       uint64

	state map[SystemID]*cadenceState
}

// NewScheduler creates a Scheduler over a registry with the given number of
// pool workers. Pool workers are extra goroutines; the Progress caller is
// the main worker on top of them.
func NewScheduler(name string, registry *Registry, workers int) *Scheduler {
	s := new(Scheduler)
	s.name = name
	s.registry = registry
	s.clock = NewClock()
	s.timers = newTimerPool()
	s.pool = newWorkerPool(workers)
	s.state = make(map[SystemID]*cadenceState)

	return s
}

// Name returns the scheduler's name.
func (s *Scheduler) Name() string {
	return s.name
}

// Registry returns the registry this scheduler executes.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// CurrentTime returns the virtual time.
func (s *Scheduler) CurrentTime() VTimeInSec {
	return s.clock.CurrentTime()
}

// CurrentTick returns the tick sequence number.
func (s *Scheduler) CurrentTick() uint64 {
	return s.clock.CurrentTick()
}

// WorkerCount returns the number of pool workers.
func (s *Scheduler) WorkerCount() int {
	return s.pool.size
}

// Pause blocks the start of the next tick until Continue is called. A tick
// already in flight finishes normally first.
func (s *Scheduler) Pause() {
	s.pauseLock.Lock()
}

// Continue lets ticks proceed again.
func (s *Scheduler) Continue() {
	s.pauseLock.Unlock()
}

// Shutdown stops the pool workers. Call it only after the last tick.
func (s *Scheduler) Shutdown() {
	s.pool.shutdown()
}

// AddTimer creates a running timer that fires every interval of virtual
// time. Timers drive rate-gated systems through TimerSource.
func (s *Scheduler) AddTimer(interval VTimeInSec) (TimerID, error) {
	return s.timers.add(interval)
}

// RemoveTimer deletes a timer. Systems using it as a tick source fall back
// to the engine tick.
func (s *Scheduler) RemoveTimer(id TimerID) error {
	return s.timers.remove(id)
}

// StartTimer resumes a stopped timer.
func (s *Scheduler) StartTimer(id TimerID) error {
	return s.timers.setRunning(id, true)
}

// StopTimer freezes a timer. A stopped timer accrues no time and never
// fires.
func (s *Scheduler) StopTimer(id TimerID) error {
	return s.timers.setRunning(id, false)
}

// ResetTimer restarts a timer's current interval from zero.
func (s *Scheduler) ResetTimer(id TimerID) error {
	return s.timers.reset(id)
}

// Plan returns the current compiled plan, recompiling first if the registry
// changed. The error reports what the compilation found: a cycle comes with
// a nil plan, an unschedulable conflict with a usable plan that excludes the
// offender.
func (s *Scheduler) Plan() (*Plan, error) {
	s.pauseLock.Lock()
	defer s.pauseLock.Unlock()

	s.ensurePlan()

	if s.plan == nil {
		return nil, s.planErr
	}

	if s.compileReport != nil {
		err := s.compileReport
		s.compileReport = nil

		return s.plan, err
	}

	return s.plan, nil
}

// Progress runs one tick with the given virtual time delta.
func (s *Scheduler) Progress(dt VTimeInSec) TickResult {
	return s.ProgressContext(context.Background(), dt)
}

// ProgressContext runs one tick. Cancelling the context aborts the tick
// between stages: the running stage always completes its barrier, later
// stages never start, and their systems stay Pending in the result.
func (s *Scheduler) ProgressContext(
	ctx context.Context,
	dt VTimeInSec,
) TickResult {
	s.pauseLock.Lock()
	defer s.pauseLock.Unlock()

	start := time.Now()

	s.ensurePlan()

	if s.plan == nil {
		return TickResult{
			Tick:         s.clock.CurrentTick(),
			Time:         s.clock.CurrentTime(),
			WallDuration: time.Since(start),
			Err:          s.planErr,
		}
	}

	s.clock.Advance(dt)
	tick := s.clock.CurrentTick()

	result := TickResult{
		Tick: tick,
		Time: s.clock.CurrentTime(),
		Statuses: make(map[SystemID]Status,
			len(s.plan.members)+len(s.plan.Excluded)),
	}

	if s.compileReport != nil {
		result.Err = s.compileReport
		s.compileReport = nil
	}

	for id := range s.plan.members {
		result.Statuses[id] = StatusPending
	}

	for _, id := range s.plan.Excluded {
		result.Statuses[id] = StatusSkipped
	}

	s.timers.advance(dt, tick)

	s.InvokeHook(HookCtx{Domain: s, Pos: HookPosTickStart, Item: tick})

	for i, stage := range s.plan.Stages {
		if err := ctx.Err(); err != nil {
			if result.Err == nil {
				result.Err = err
			}

			break
		}

		s.InvokeHook(HookCtx{
			Domain: s, Pos: HookPosStageStart, Item: i, Detail: stage})

		s.runStage(stage, dt, tick, &result)

		s.InvokeHook(HookCtx{
			Domain: s, Pos: HookPosStageEnd, Item: i, Detail: stage})
	}

	result.WallDuration = time.Since(start)

	s.InvokeHook(HookCtx{Domain: s, Pos: HookPosTickEnd, Item: result})

	return result
}

// Run executes ticks of a fixed delta until the count is reached, the
// context is cancelled, or plan compilation fails. It returns the last
// tick's result.
func (s *Scheduler) Run(
	ctx context.Context,
	ticks uint64,
	dt VTimeInSec,
) TickResult {
	var last TickResult

	for i := uint64(0); i < ticks; i++ {
		last = s.ProgressContext(ctx, dt)

		if last.Statuses == nil || ctx.Err() != nil {
			break
		}
	}

	return last
}

// ensurePlan recompiles when the registry changed, or when the scheduler
// never compiled. After a failed compilation the error sticks until the
// next registry mutation.
func (s *Scheduler) ensurePlan() {
	if !s.registry.consumeDirty() && (s.plan != nil || s.planErr != nil) {
		return
	}

	s.planSeq++

	plan, err := compilePlan(s.registry, s.planSeq, s.clock.CurrentTick())
	if plan == nil {
		s.plan = nil
		s.planErr = err
		s.compileReport = nil

		return
	}

	s.plan = plan
	s.planErr = nil
	s.compileReport = err

	s.pruneState(plan)

	s.InvokeHook(HookCtx{Domain: s, Pos: HookPosPlanBuilt, Item: plan})
}

// pruneState drops cadence state of systems that left the registry. Planned
// and excluded systems keep theirs across rebuilds.
func (s *Scheduler) pruneState(plan *Plan) {
	for id := range s.state {
		if _, ok := plan.members[id]; ok {
			continue
		}

		if planExcludes(plan, id) {
			continue
		}

		delete(s.state, id)
	}
}

func planExcludes(plan *Plan, id SystemID) bool {
	for _, ex := range plan.Excluded {
		if ex == id {
			return true
		}
	}

	return false
}

func (s *Scheduler) runStage(
	stage *Stage,
	dt VTimeInSec,
	tick uint64,
	result *TickResult,
) {
	acts := make([]*activation, 0, len(stage.members))

	for _, m := range stage.members {
		status, reason := s.gate(m, dt, tick, result.Statuses)
		if status == StatusSkipped {
			result.Statuses[m.id] = StatusSkipped
			s.InvokeHook(HookCtx{
				Domain: s, Pos: HookPosSystemSkip, Item: m.id, Detail: reason})

			continue
		}

		result.Statuses[m.id] = StatusEligible
		acts = append(acts, s.makeActivation(m, stage, dt, tick))
	}

	for _, act := range acts {
		s.InvokeHook(HookCtx{
			Domain: s,
			Pos:    HookPosSystemStart,
			Item:   act.member.id,
			Detail: act.member.name,
		})
	}

	for _, act := range acts {
		if !act.pinned {
			s.dispatch(act)
		}
	}

	// The main worker runs the pinned activations while the pool chews on
	// the parallel ones.
	for _, act := range acts {
		if act.pinned {
			for chunk := range act.iters {
				s.runChunk(act, chunk, 0)
			}
		}
	}

	s.pool.barrier()

	for _, act := range acts {
		s.settle(act, tick, result)
	}
}

// gate decides whether one system runs this tick. It runs exactly once per
// planned system per tick, on the main worker, so cadence state needs no
// locking. Time accrual and source observation happen before the skip
// checks: a skipped tick still ages the accumulator and the rate counter.
func (s *Scheduler) gate(
	m *planMember,
	dt VTimeInSec,
	tick uint64,
	statuses map[SystemID]Status,
) (Status, string) {
	st := s.stateOf(m.id)

	if m.desc.Interval > 0 {
		st.accumulator += dt
	}

	fired := false
	rateGated := m.desc.Rate > 0 || !m.desc.TickSource.IsEngineTick()
	if rateGated {
		fired = s.observeSource(m, st)
	}

	if m.desc.Phase == PhaseOnStart && tick != 1 {
		return StatusSkipped, "start phase already ran"
	}

	if !s.registry.isEnabled(m.id) {
		return StatusSkipped, "disabled"
	}

	for _, dep := range m.dependsOn {
		depStatus, ok := statuses[dep]
		if !ok {
			log.Panicf("dependency %s has no status at gating time", dep)
		}

		if depStatus == StatusSkipped || depStatus == StatusFailed {
			return StatusSkipped,
				fmt.Sprintf("dependency %s did not run", s.registry.Name(dep))
		}
	}

	if m.desc.Interval > 0 && st.accumulator < m.desc.Interval {
		return StatusSkipped, "interval not elapsed"
	}

	if rateGated {
		if !fired {
			return StatusSkipped, "tick source has not fired"
		}

		rate := uint64(m.desc.Rate)
		if rate == 0 {
			rate = 1
		}

		if st.counter%rate != 0 {
			return StatusSkipped, "rate not reached"
		}
	}

	return StatusEligible, ""
}

// observeSource advances the rate counter when the tick source has fired
// since the last observation. A source that left the engine falls back to
// the engine tick, which fires every tick.
func (s *Scheduler) observeSource(m *planMember, st *cadenceState) bool {
	src := m.desc.TickSource

	if src.timer != NilTimer {
		fired, ok := s.timers.lastFiredTick(src.timer)
		if ok {
			if fired > st.lastObserved {
				st.lastObserved = fired
				st.counter++

				return true
			}

			return false
		}
	} else if src.system != NilSystem {
		if _, planned := s.plan.members[src.system]; planned {
			srcState := s.state[src.system]
			if srcState != nil && srcState.lastRan > st.lastObserved {
				st.lastObserved = srcState.lastRan
				st.counter++

				return true
			}

			return false
		}

		if planExcludes(s.plan, src.system) {
			return false
		}
	}

	st.counter++

	return true
}

func (s *Scheduler) stateOf(id SystemID) *cadenceState {
	st, ok := s.state[id]
	if !ok {
		st = new(cadenceState)
		s.state[id] = st
	}

	return st
}

// makeActivation fetches the query's batches and slices them into chunks.
// Only multi-threaded systems in a shared stage split; everything else gets
// a single chunk pinned to the main worker.
func (s *Scheduler) makeActivation(
	m *planMember,
	stage *Stage,
	dt VTimeInSec,
	tick uint64,
) *activation {
	var batches []Batch
	if m.desc.Query != nil {
		batches = m.desc.Query.Batches()
	}

	act := &activation{
		member: m,
		pinned: !m.desc.MultiThreaded || stage.Exclusive,
	}

	chunkCount := 1
	if !act.pinned && s.pool.size > 1 && len(batches) > 1 {
		chunkCount = s.pool.size
		if chunkCount > len(batches) {
			chunkCount = len(batches)
		}
	}

	chunks := make([][]Batch, chunkCount)
	if chunkCount == 1 {
		chunks[0] = batches
	} else {
		for i, b := range batches {
			chunks[i%chunkCount] = append(chunks[i%chunkCount], b)
		}
	}

	for _, chunk := range chunks {
		act.iters = append(act.iters, &Iter{
			System:  m.id,
			Name:    m.name,
			Batches: chunk,
			Delta:   dt,
			Tick:    tick,
			Ctx:     m.desc.Ctx,
		})
	}

	act.errs = make([]error, len(act.iters))

	return act
}

func (s *Scheduler) dispatch(act *activation) {
	for i := range act.iters {
		chunk := i
		s.pool.submit(func(worker int) {
			s.runChunk(act, chunk, worker)
		})
	}
}

func (s *Scheduler) runChunk(act *activation, chunk, worker int) {
	it := act.iters[chunk]
	it.Worker = worker
	act.errs[chunk] = s.invoke(act.member, it)
}

// invoke runs the callback, converting an error return or a panic into a
// CallbackFailureError.
func (s *Scheduler) invoke(m *planMember, it *Iter) (failure error) {
	defer func() {
		if r := recover(); r != nil {
			failure = &CallbackFailureError{
				System: m.name,
				Tick:   it.Tick,
				Err:    fmt.Errorf("panic: %v", r),
				Stack:  debug.Stack(),
			}
		}
	}()

	if err := m.desc.Action(it); err != nil {
		return &CallbackFailureError{System: m.name, Tick: it.Tick, Err: err}
	}

	return nil
}

// settle finalizes one activation after the stage barrier. A run consumes
// the interval accumulator by subtraction, so fractional overshoot carries
// into the next period; a failed run consumes nothing.
func (s *Scheduler) settle(
	act *activation,
	tick uint64,
	result *TickResult,
) {
	m := act.member

	var failure error
	for _, err := range act.errs {
		if err != nil {
			failure = err
			break
		}
	}

	if failure != nil {
		result.Statuses[m.id] = StatusFailed
		if result.Err == nil {
			result.Err = failure
		}

		s.InvokeHook(HookCtx{
			Domain: s, Pos: HookPosSystemFail, Item: m.id, Detail: failure})

		return
	}

	st := s.stateOf(m.id)
	if m.desc.Interval > 0 {
		st.accumulator -= m.desc.Interval
	}

	st.lastRan = tick

	result.Statuses[m.id] = StatusRan
	result.Ran++

	s.InvokeHook(HookCtx{
		Domain: s, Pos: HookPosSystemEnd, Item: m.id, Detail: m.name})
}
