package table

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/schedlab/cadence/sched"
)

var _ = Describe("Query", func() {
	var (
		tbl *Table
		pos sched.ComponentID
		vel sched.ComponentID
	)

	BeforeEach(func() {
		tbl = New()
		pos = tbl.AddComponent("Position")
		vel = tbl.AddComponent("Velocity")
	})

	It("should declare its footprint", func() {
		q := tbl.NewQuery(
			[]sched.ComponentID{vel}, []sched.ComponentID{pos})

		fp := q.Footprint()

		Expect(fp.Reads).To(Equal([]sched.ComponentID{vel}))
		Expect(fp.Writes).To(Equal([]sched.ComponentID{pos}))
	})

	It("should match entities holding every listed component", func() {
		both := tbl.Spawn(pos, vel)
		tbl.Spawn(pos)

		q := tbl.NewQuery(
			[]sched.ComponentID{vel}, []sched.ComponentID{pos})

		batches := q.Batches()

		Expect(batches).To(HaveLen(1))
		Expect(batches[0].Entities).To(Equal([]uint64{both}))
	})

	It("should list matches in ascending entity order", func() {
		e1 := tbl.Spawn(pos)
		e2 := tbl.Spawn(pos)
		e3 := tbl.Spawn(pos)

		q := tbl.NewQuery(nil, []sched.ComponentID{pos})

		batches := q.Batches()

		Expect(batches).To(HaveLen(1))
		Expect(batches[0].Entities).To(Equal([]uint64{e1, e2, e3}))
	})

	It("should chunk matches by the batch size", func() {
		for i := 0; i < 5; i++ {
			tbl.Spawn(pos)
		}

		q := tbl.NewQuery(nil, []sched.ComponentID{pos})
		q.SetBatchSize(2)

		batches := q.Batches()

		Expect(batches).To(HaveLen(3))
		Expect(batches[0].Entities).To(HaveLen(2))
		Expect(batches[1].Entities).To(HaveLen(2))
		Expect(batches[2].Entities).To(HaveLen(1))
	})

	It("should return no batches when nothing matches", func() {
		q := tbl.NewQuery(nil, []sched.ComponentID{pos})

		Expect(q.Batches()).To(BeEmpty())
	})

	It("should reject an invalid batch size", func() {
		q := tbl.NewQuery(nil, []sched.ComponentID{pos})

		Expect(func() { q.SetBatchSize(0) }).To(Panic())
	})

	It("should read and write through the batch view", func() {
		e := tbl.Spawn(pos, vel)
		tbl.Set(e, vel, 3.0)

		q := tbl.NewQuery(
			[]sched.ComponentID{vel}, []sched.ComponentID{pos})

		batches := q.Batches()
		view := batches[0].Columns.(*View)

		view.Set(e, pos, view.Get(e, vel)*2)

		v, _ := tbl.Get(e, pos)
		Expect(v).To(Equal(6.0))
	})

	It("should panic on viewing a component the entity lacks", func() {
		e := tbl.Spawn(pos)

		q := tbl.NewQuery(nil, []sched.ComponentID{pos})
		view := q.Batches()[0].Columns.(*View)

		Expect(func() { view.Get(e, vel) }).To(Panic())
	})
})
