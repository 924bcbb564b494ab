package tracing

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/schedlab/cadence/sched"
)

var errTestFailure = errors.New("induced failure")

var _ = Describe("Scheduler Task Emission", func() {
	var (
		registry  *sched.Registry
		scheduler *sched.Scheduler
		tracer    *capturingTracer
	)

	BeforeEach(func() {
		registry = sched.NewRegistry()
		scheduler = sched.NewScheduler("engine", registry, 0)

		EmitSchedulerTasks(scheduler)

		tracer = &capturingTracer{}
		CollectTrace(scheduler, tracer)
	})

	AfterEach(func() {
		scheduler.Shutdown()
	})

	It("should attach only one emitter", func() {
		hookCount := len(scheduler.Hooks)

		EmitSchedulerTasks(scheduler)

		Expect(scheduler.Hooks).To(HaveLen(hookCount))
	})

	It("should emit tick, stage, and system tasks", func() {
		_, err := registry.Register(sched.Desc{
			Name:   "motion",
			Action: func(*sched.Iter) error { return nil },
		})
		Expect(err).ToNot(HaveOccurred())

		_, err = registry.Register(sched.Desc{
			Name:   "render",
			Action: func(*sched.Iter) error { return nil },
		})
		Expect(err).ToNot(HaveOccurred())

		result := scheduler.Progress(0.1)
		Expect(result.Err).ToNot(HaveOccurred())

		kinds := map[string]int{}
		for _, task := range tracer.started {
			kinds[task.Kind]++
		}

		Expect(kinds["tick"]).To(Equal(1))
		Expect(kinds["stage"]).To(Equal(1))
		Expect(kinds["system"]).To(Equal(2))

		Expect(tracer.ended).To(HaveLen(len(tracer.started)))
	})

	It("should chain system tasks to their stage and tick", func() {
		_, err := registry.Register(sched.Desc{
			Name:   "motion",
			Action: func(*sched.Iter) error { return nil },
		})
		Expect(err).ToNot(HaveOccurred())

		scheduler.Progress(0.1)

		byKind := map[string]Task{}
		for _, task := range tracer.started {
			byKind[task.Kind] = task
		}

		tick := byKind["tick"]
		stage := byKind["stage"]
		system := byKind["system"]

		Expect(tick.ParentID).To(BeEmpty())
		Expect(tick.ID).To(Equal("engine.tick.1"))
		Expect(stage.ParentID).To(Equal(tick.ID))
		Expect(system.ParentID).To(Equal(stage.ID))
		Expect(system.What).To(Equal("motion"))
		Expect(system.Where).To(Equal("engine"))
	})

	It("should end the task of a failing system", func() {
		_, err := registry.Register(sched.Desc{
			Name: "flaky",
			Action: func(*sched.Iter) error {
				return errTestFailure
			},
		})
		Expect(err).ToNot(HaveOccurred())

		scheduler.Progress(0.1)

		Expect(tracer.ended).To(HaveLen(len(tracer.started)))
	})
})
