package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/schedlab/cadence/sched"
)

var _ = Describe("Busy Time Tracer", func() {
	var (
		mockCtrl   *gomock.Controller
		timeTeller *MockTimeTeller
		tracer     *BusyTimeTracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		timeTeller = NewMockTimeTeller(mockCtrl)
		tracer = NewBusyTimeTracer(timeTeller, nil)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	startAt := func(id string, time sched.VTimeInSec) {
		timeTeller.EXPECT().CurrentTime().Return(time)
		tracer.StartTask(Task{ID: id, Kind: "system", What: "motion"})
	}

	endAt := func(id string, time sched.VTimeInSec) {
		timeTeller.EXPECT().CurrentTime().Return(time)
		tracer.EndTask(Task{ID: id})
	}

	It("should sum disjoint tasks", func() {
		startAt("1", 1)
		endAt("1", 2)
		startAt("2", 3)
		endAt("2", 4)

		Expect(tracer.BusyTime()).To(Equal(sched.VTimeInSec(2)))
	})

	It("should count overlapping tasks once", func() {
		startAt("1", 1)
		startAt("2", 2)
		endAt("1", 3)
		endAt("2", 4)

		Expect(tracer.BusyTime()).To(Equal(sched.VTimeInSec(3)))
	})

	It("should swallow a contained task", func() {
		startAt("1", 1)
		endAt("1", 10)
		startAt("2", 2)
		endAt("2", 3)

		Expect(tracer.BusyTime()).To(Equal(sched.VTimeInSec(9)))
	})

	It("should insert an earlier span before a later one", func() {
		startAt("1", 5)
		endAt("1", 6)
		startAt("2", 1)
		endAt("2", 2)

		Expect(tracer.BusyTime()).To(Equal(sched.VTimeInSec(2)))
	})

	It("should bridge several disjoint spans", func() {
		startAt("1", 1)
		endAt("1", 2)
		startAt("2", 3)
		endAt("2", 4)
		startAt("3", 5)
		endAt("3", 6)

		startAt("4", 1.5)
		endAt("4", 5.5)

		Expect(tracer.BusyTime()).To(Equal(sched.VTimeInSec(5)))
	})

	It("should terminate all inflight tasks", func() {
		startAt("1", 1)
		startAt("2", 2)

		tracer.TerminateAllTasks(5)

		Expect(tracer.BusyTime()).To(Equal(sched.VTimeInSec(4)))
	})
})
