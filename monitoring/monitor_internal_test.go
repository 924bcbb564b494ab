package monitoring

import (
	"encoding/json"
	"net/http/httptest"

	"github.com/gorilla/mux"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/schedlab/cadence/sched"
)

type counterState struct {
	Count int
}

var _ = Describe("Monitor", func() {
	var (
		registry  *sched.Registry
		scheduler *sched.Scheduler
		m         *Monitor
	)

	BeforeEach(func() {
		registry = sched.NewRegistry()

		_, err := registry.Register(sched.Desc{
			Name:   "alpha",
			Action: func(*sched.Iter) error { return nil },
			Ctx:    &counterState{Count: 3},
		})
		Expect(err).ToNot(HaveOccurred())

		_, err = registry.Register(sched.Desc{
			Name:   "beta",
			Action: func(*sched.Iter) error { return nil },
		})
		Expect(err).ToNot(HaveOccurred())

		scheduler = sched.NewScheduler("mon", registry, 0)
		m = &Monitor{scheduler: scheduler}
	})

	AfterEach(func() {
		scheduler.Shutdown()
	})

	It("should report the current time and tick", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/now", nil)

		m.now(w, r)

		Expect(w.Code).To(Equal(200))
		Expect(w.Body.String()).To(Equal(`{"now":0.0000000000,"tick":0}`))
	})

	It("should list the registered systems", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/list_systems", nil)

		m.listSystems(w, r)

		var names []string
		Expect(json.Unmarshal(w.Body.Bytes(), &names)).To(Succeed())
		Expect(names).To(ConsistOf("alpha", "beta"))
	})

	It("should advance one tick", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/tick?dt=0.5", nil)

		m.tick(w, r)

		rsp := tickRsp{}
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Tick).To(Equal(uint64(1)))
		Expect(rsp.Time).To(Equal(0.5))
		Expect(rsp.Ran).To(Equal(2))
		Expect(rsp.Statuses).To(HaveKeyWithValue("alpha", "Ran"))
		Expect(rsp.Statuses).To(HaveKeyWithValue("beta", "Ran"))
	})

	It("should reject an invalid dt", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/tick?dt=fast", nil)

		m.tick(w, r)

		Expect(w.Code).To(Equal(400))
		Expect(w.Body.String()).To(Equal("invalid dt parameter"))
	})

	It("should launch a run in the background", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/run?ticks=0&dt=0.5", nil)

		m.run(w, r)

		Expect(w.Code).To(Equal(202))
	})

	It("should reject a run without a tick count", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/run?dt=0.5", nil)

		m.run(w, r)

		Expect(w.Code).To(Equal(400))
		Expect(w.Body.String()).To(Equal("invalid ticks parameter"))
	})

	It("should render the plan", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/plan", nil)

		m.showPlan(w, r)

		rsp := planRsp{}
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Rendered).ToNot(BeEmpty())
		Expect(rsp.Stages).To(HaveLen(1))
		Expect(rsp.Stages[0].Exclusive).To(BeFalse())
		Expect(rsp.Stages[0].Systems).To(ConsistOf("alpha", "beta"))
	})

	It("should describe a system", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/system/alpha", nil)
		r = mux.SetURLVars(r, map[string]string{"name": "alpha"})

		m.listSystemDetails(w, r)

		rsp := systemRsp{}
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Name).To(Equal("alpha"))
		Expect(rsp.Phase).To(Equal("Default"))
		Expect(rsp.Enabled).To(BeTrue())
	})

	It("should report unknown systems", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/system/gamma", nil)
		r = mux.SetURLVars(r, map[string]string{"name": "gamma"})

		m.listSystemDetails(w, r)

		Expect(w.Code).To(Equal(404))
		Expect(w.Body.String()).To(Equal("System not found"))
	})

	It("should serialize the state object of a system", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/state/x", nil)
		r = mux.SetURLVars(r, map[string]string{
			"json": `{"system":"alpha"}`,
		})

		m.listStateField(w, r)

		Expect(w.Code).To(Equal(200))
		Expect(w.Body.Len()).ToNot(BeZero())
	})

	It("should report systems without a state object", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/state/x", nil)
		r = mux.SetURLVars(r, map[string]string{
			"json": `{"system":"beta"}`,
		})

		m.listStateField(w, r)

		Expect(w.Code).To(Equal(404))
		Expect(w.Body.String()).To(Equal("system has no state object"))
	})

	It("should reject trace control without a tracer", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/trace/start", nil)

		m.startTracing(w, r)

		Expect(w.Code).To(Equal(404))
		Expect(w.Body.String()).To(Equal("no database tracer registered"))
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("load", 10)
		bar.IncrementFinished(3)

		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/progress", nil)
		m.listProgressBars(w, r)

		var bars []*ProgressBar
		Expect(json.Unmarshal(w.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("load"))
		Expect(bars[0].Total).To(Equal(uint64(10)))
		Expect(bars[0].Finished).To(Equal(uint64(3)))

		m.CompleteProgressBar(bar)

		w = httptest.NewRecorder()
		m.listProgressBars(w, r)
		Expect(w.Body.String()).To(Equal("[]"))
	})
})
