package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/schedlab/cadence/sched"
)

type testDomain struct {
	sched.HookableBase

	name string
}

func (d *testDomain) Name() string {
	return d.name
}

// capturingTracer keeps every task record it receives.
type capturingTracer struct {
	started []Task
	stepped []Task
	ended   []Task
}

func (t *capturingTracer) StartTask(task Task) {
	t.started = append(t.started, task)
}

func (t *capturingTracer) StepTask(task Task) {
	t.stepped = append(t.stepped, task)
}

func (t *capturingTracer) EndTask(task Task) {
	t.ended = append(t.ended, task)
}

var _ = Describe("Task API", func() {
	var (
		domain *testDomain
		tracer *capturingTracer
	)

	BeforeEach(func() {
		domain = &testDomain{name: "engine"}
		tracer = &capturingTracer{}

		CollectTrace(domain, tracer)
	})

	It("should deliver a started task to the attached tracer", func() {
		StartTask("t1", "", domain, "system", "motion", nil)

		Expect(tracer.started).To(HaveLen(1))
		Expect(tracer.started[0].ID).To(Equal("t1"))
		Expect(tracer.started[0].Kind).To(Equal("system"))
		Expect(tracer.started[0].What).To(Equal("motion"))
		Expect(tracer.started[0].Where).To(Equal("engine"))
	})

	It("should override the location when asked to", func() {
		StartTaskWithSpecificLocation(
			"t1", "", domain, "system", "motion", "worker 3", nil)

		Expect(tracer.started[0].Where).To(Equal("worker 3"))
	})

	It("should deliver steps", func() {
		StartTask("t1", "", domain, "system", "motion", nil)
		AddTaskStep("t1", domain, "queued")

		Expect(tracer.stepped).To(HaveLen(1))
		Expect(tracer.stepped[0].Steps).To(HaveLen(1))
		Expect(tracer.stepped[0].Steps[0].What).To(Equal("queued"))
	})

	It("should deliver ended tasks", func() {
		StartTask("t1", "", domain, "system", "motion", nil)
		EndTask("t1", domain)

		Expect(tracer.ended).To(HaveLen(1))
		Expect(tracer.ended[0].ID).To(Equal("t1"))
	})

	It("should reject a task without an ID", func() {
		Expect(func() {
			StartTask("", "", domain, "system", "motion", nil)
		}).To(Panic())
	})

	It("should reject a task without a kind", func() {
		Expect(func() {
			StartTask("t1", "", domain, "", "motion", nil)
		}).To(Panic())
	})

	It("should reject a task without a what", func() {
		Expect(func() {
			StartTask("t1", "", domain, "system", "", nil)
		}).To(Panic())
	})

	It("should reject a domain without a name", func() {
		unnamed := &testDomain{}

		Expect(func() {
			StartTask("t1", "", unnamed, "system", "motion", nil)
		}).To(Panic())
	})
})
