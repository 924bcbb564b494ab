package cadence

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/schedlab/cadence/monitoring"
	"github.com/schedlab/cadence/sched"
	"github.com/schedlab/cadence/table"
)

var _ = Describe("Engine", func() {
	var engine *Engine

	BeforeEach(func() {
		engine = MakeBuilder().
			WithoutMonitoring().
			WithWorkers(2).
			Build()
	})

	AfterEach(func() {
		engine.Terminate()

		os.Remove("cadence_run_" + engine.ID() + ".sqlite3")
	})

	It("should run a system over ticks", func() {
		runs := 0
		_, err := engine.Register(sched.Desc{
			Name: "pulse",
			Action: func(*sched.Iter) error {
				runs++
				return nil
			},
		})
		Expect(err).ToNot(HaveOccurred())

		result := engine.Run(context.Background(), 5, 0.1)

		Expect(result.Err).ToNot(HaveOccurred())
		Expect(result.Tick).To(Equal(uint64(5)))
		Expect(runs).To(Equal(5))
	})

	It("should tick once on Progress", func() {
		result := engine.Progress(0.5)

		Expect(result.Tick).To(Equal(uint64(1)))
		Expect(engine.Scheduler().CurrentTime()).To(Equal(sched.VTimeInSec(0.5)))
	})

	It("should move entities with a table-backed query", func() {
		tbl := table.New()
		pos := tbl.AddComponent("Position")
		vel := tbl.AddComponent("Velocity")

		entities := make([]uint64, 0, 8)
		for i := 0; i < 8; i++ {
			e := tbl.Spawn(pos, vel)
			tbl.Set(e, vel, float64(i))
			entities = append(entities, e)
		}

		_, err := engine.Register(sched.Desc{
			Name: "movement",
			Query: tbl.NewQuery(
				[]sched.ComponentID{vel},
				[]sched.ComponentID{pos},
			),
			MultiThreaded: true,
			Action: func(it *sched.Iter) error {
				for _, b := range it.Batches {
					view := b.Columns.(*table.View)
					for _, e := range b.Entities {
						p := view.Get(e, pos) +
							view.Get(e, vel)*float64(it.Delta)
						view.Set(e, pos, p)
					}
				}

				return nil
			},
		})
		Expect(err).ToNot(HaveOccurred())

		result := engine.Run(context.Background(), 2, 0.5)
		Expect(result.Err).ToNot(HaveOccurred())

		for i, e := range entities {
			p, _ := tbl.Get(e, pos)
			Expect(p).To(Equal(float64(i)))
		}
	})

	It("should show a run on an attached monitor", func() {
		engine.monitor = monitoring.NewMonitor()

		_, err := engine.Register(sched.Desc{
			Name:   "pulse",
			Action: func(*sched.Iter) error { return nil },
		})
		Expect(err).ToNot(HaveOccurred())

		result := engine.Run(context.Background(), 3, 0.1)

		Expect(result.Tick).To(Equal(uint64(3)))
	})
})

var _ = Describe("Builder", func() {
	It("should honor CADENCE_WORKERS", func() {
		os.Setenv("CADENCE_WORKERS", "3")
		DeferCleanup(os.Unsetenv, "CADENCE_WORKERS")

		e := MakeBuilder().WithoutMonitoring().Build()
		DeferCleanup(func() {
			e.Terminate()
			os.Remove("cadence_run_" + e.ID() + ".sqlite3")
		})

		Expect(e.Scheduler().WorkerCount()).To(Equal(3))
	})

	It("should honor CADENCE_MONITOR", func() {
		os.Setenv("CADENCE_MONITOR", "false")
		DeferCleanup(os.Unsetenv, "CADENCE_MONITOR")

		e := MakeBuilder().Build()
		DeferCleanup(func() {
			e.Terminate()
			os.Remove("cadence_run_" + e.ID() + ".sqlite3")
		})

		Expect(e.Monitor()).To(BeNil())
	})

	It("should honor CADENCE_OUTPUT", func() {
		os.Setenv("CADENCE_OUTPUT", "test_env_output")
		DeferCleanup(os.Unsetenv, "CADENCE_OUTPUT")

		e := MakeBuilder().WithoutMonitoring().Build()
		DeferCleanup(func() {
			e.Terminate()
			os.Remove("test_env_output.sqlite3")
		})

		_, err := os.Stat("test_env_output.sqlite3")
		Expect(err).ToNot(HaveOccurred())
	})

	It("should allow a custom output file", func() {
		e := MakeBuilder().
			WithoutMonitoring().
			WithOutputFileName("test_custom_output").
			Build()
		DeferCleanup(func() {
			e.Terminate()
			os.Remove("test_custom_output.sqlite3")
		})

		Expect(e.Recorder()).ToNot(BeNil())

		_, err := os.Stat("test_custom_output.sqlite3")
		Expect(err).ToNot(HaveOccurred())
	})

	It("should reject a monitor port without monitoring", func() {
		build := func() {
			MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		}

		Expect(build).To(PanicWith(
			"monitor port cannot be set when monitoring is disabled"))
	})
})
