package sched

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func nopAction(*Iter) error {
	return nil
}

var _ = Describe("Registry", func() {
	var registry *Registry

	BeforeEach(func() {
		registry = NewRegistry()
	})

	It("should register systems with distinct handles", func() {
		a, err := registry.Register(Desc{Name: "a", Action: nopAction})
		Expect(err).ToNot(HaveOccurred())

		b, err := registry.Register(Desc{Name: "b", Action: nopAction})
		Expect(err).ToNot(HaveOccurred())

		Expect(a).ToNot(Equal(b))
		Expect(registry.Count()).To(Equal(2))
		Expect(registry.Name(a)).To(Equal("a"))
		Expect(registry.Name(b)).To(Equal("b"))
	})

	It("should assign a name when the descriptor has none", func() {
		id, err := registry.Register(Desc{Action: nopAction})

		Expect(err).ToNot(HaveOccurred())
		Expect(registry.Name(id)).To(Equal("system1"))
	})

	It("should reject a descriptor without an action", func() {
		_, err := registry.Register(Desc{Name: "broken"})

		Expect(err).To(HaveOccurred())
		Expect(registry.Count()).To(Equal(0))
	})

	It("should reject a negative interval", func() {
		_, err := registry.Register(Desc{
			Name:     "broken",
			Action:   nopAction,
			Interval: -1.0,
		})

		Expect(err).To(HaveOccurred())
	})

	It("should reject an unregistered phase", func() {
		_, err := registry.Register(Desc{
			Name:   "broken",
			Action: nopAction,
			Phase:  Phase(99),
		})

		Expect(err).To(HaveOccurred())
	})

	It("should reject an edge to an unregistered system", func() {
		_, err := registry.Register(Desc{
			Name:   "broken",
			Action: nopAction,
			After:  []SystemID{SystemID(12345)},
		})

		var edgeErr *InvalidEdgeError
		Expect(errors.As(err, &edgeErr)).To(BeTrue())
		Expect(registry.Count()).To(Equal(0))
	})

	It("should store a before edge as an after edge on the target", func() {
		target, _ := registry.Register(Desc{Name: "target", Action: nopAction})
		early, _ := registry.Register(Desc{
			Name:   "early",
			Action: nopAction,
			Before: []SystemID{target},
		})

		edges := registry.edgeSnapshot()
		Expect(edges[target]).To(HaveKeyWithValue(early, EdgeAfter))
		Expect(edges).ToNot(HaveKey(early))
	})

	It("should collapse duplicate edges, depends-on winning", func() {
		dep, _ := registry.Register(Desc{Name: "dep", Action: nopAction})
		user, _ := registry.Register(Desc{
			Name:      "user",
			Action:    nopAction,
			After:     []SystemID{dep},
			DependsOn: []SystemID{dep},
		})

		edges := registry.edgeSnapshot()
		Expect(edges[user]).To(HaveLen(1))
		Expect(edges[user]).To(HaveKeyWithValue(dep, EdgeDependsOn))

		Expect(registry.AddEdge(user, dep, EdgeAfter)).To(Succeed())

		edges = registry.edgeSnapshot()
		Expect(edges[user]).To(HaveKeyWithValue(dep, EdgeDependsOn))
	})

	It("should reject a self edge", func() {
		id, _ := registry.Register(Desc{Name: "solo", Action: nopAction})

		err := registry.AddEdge(id, id, EdgeAfter)

		var edgeErr *InvalidEdgeError
		Expect(errors.As(err, &edgeErr)).To(BeTrue())
	})

	It("should reject an edge between unknown systems", func() {
		id, _ := registry.Register(Desc{Name: "solo", Action: nopAction})

		Expect(registry.AddEdge(id, SystemID(777), EdgeAfter)).
			ToNot(Succeed())
		Expect(registry.AddEdge(SystemID(777), id, EdgeAfter)).
			ToNot(Succeed())
	})

	It("should remove edges", func() {
		a, _ := registry.Register(Desc{Name: "a", Action: nopAction})
		b, _ := registry.Register(Desc{Name: "b", Action: nopAction})
		Expect(registry.AddEdge(a, b, EdgeAfter)).To(Succeed())

		Expect(registry.RemoveEdge(a, b)).To(Succeed())

		Expect(registry.edgeSnapshot()[a]).ToNot(HaveKey(b))
	})

	It("should scrub every edge of a deregistered system", func() {
		gone, _ := registry.Register(Desc{Name: "gone", Action: nopAction})
		user, _ := registry.Register(Desc{
			Name:   "user",
			Action: nopAction,
			After:  []SystemID{gone},
		})
		Expect(registry.AddEdge(gone, user, EdgeDependsOn)).To(Succeed())

		Expect(registry.Deregister(gone)).To(Succeed())

		edges := registry.edgeSnapshot()
		Expect(edges).ToNot(HaveKey(gone))
		for _, m := range edges {
			Expect(m).ToNot(HaveKey(gone))
		}

		Expect(registry.Count()).To(Equal(1))
	})

	It("should never revive a stale handle", func() {
		first, _ := registry.Register(Desc{Name: "first", Action: nopAction})
		Expect(registry.Deregister(first)).To(Succeed())

		second, _ := registry.Register(Desc{Name: "second", Action: nopAction})

		Expect(second).ToNot(Equal(first))
		Expect(second.index()).To(Equal(first.index()))

		_, ok := registry.System(first)
		Expect(ok).To(BeFalse())
	})

	It("should toggle enablement without touching the plan flag", func() {
		id, _ := registry.Register(Desc{Name: "sys", Action: nopAction})
		registry.consumeDirty()

		Expect(registry.isEnabled(id)).To(BeTrue())

		Expect(registry.Disable(id)).To(Succeed())
		Expect(registry.isEnabled(id)).To(BeFalse())

		Expect(registry.Enable(id)).To(Succeed())
		Expect(registry.isEnabled(id)).To(BeTrue())

		Expect(registry.consumeDirty()).To(BeFalse())
	})

	It("should mark the registry dirty on descriptor edits", func() {
		id, _ := registry.Register(Desc{Name: "sys", Action: nopAction})
		Expect(registry.consumeDirty()).To(BeTrue())
		Expect(registry.consumeDirty()).To(BeFalse())

		Expect(registry.SetInterval(id, 0.5)).To(Succeed())
		Expect(registry.consumeDirty()).To(BeTrue())

		Expect(registry.SetRate(id, 3, TickSource{})).To(Succeed())
		Expect(registry.consumeDirty()).To(BeTrue())

		Expect(registry.SetMultiThreaded(id, true)).To(Succeed())
		Expect(registry.consumeDirty()).To(BeTrue())

		Expect(registry.SetImmediate(id, true)).To(Succeed())
		Expect(registry.consumeDirty()).To(BeTrue())

		desc, ok := registry.System(id)
		Expect(ok).To(BeTrue())
		Expect(desc.Interval).To(BeEquivalentTo(0.5))
		Expect(desc.Rate).To(BeEquivalentTo(3))
		Expect(desc.MultiThreaded).To(BeTrue())
		Expect(desc.Immediate).To(BeTrue())
	})

	It("should reject an invalid interval edit", func() {
		id, _ := registry.Register(Desc{Name: "sys", Action: nopAction})

		Expect(registry.SetInterval(id, -0.1)).ToNot(Succeed())
	})

	It("should reject edits on unknown systems", func() {
		Expect(registry.SetInterval(SystemID(42), 0.5)).ToNot(Succeed())
		Expect(registry.Disable(SystemID(42))).ToNot(Succeed())
		Expect(registry.Deregister(SystemID(42))).ToNot(Succeed())
	})

	It("should slot a custom phase directly after its anchor", func() {
		p, err := registry.RegisterPhase("Physics", PhaseOnUpdate)

		Expect(err).ToNot(HaveOccurred())
		Expect(registry.PhaseName(p)).To(Equal("Physics"))
		Expect(registry.phaseRank(p)).To(
			Equal(registry.phaseRank(PhaseOnUpdate) + 1))
		Expect(registry.phaseRank(PhaseOnValidate)).To(
			Equal(registry.phaseRank(p) + 1))

		_, err = registry.Register(Desc{
			Name:   "step",
			Action: nopAction,
			Phase:  p,
		})
		Expect(err).ToNot(HaveOccurred())
	})

	It("should reject a phase with an unknown anchor", func() {
		_, err := registry.RegisterPhase("Physics", Phase(99))

		Expect(err).To(HaveOccurred())
	})

	It("should rank the default phase after every built-in phase", func() {
		Expect(registry.phaseRank(PhaseDefault)).To(
			BeNumerically(">", registry.phaseRank(PhaseOnStore)))
	})

	It("should visit systems in registration order", func() {
		_, _ = registry.Register(Desc{Name: "one", Action: nopAction})
		_, _ = registry.Register(Desc{Name: "two", Action: nopAction})
		_, _ = registry.Register(Desc{Name: "three", Action: nopAction})

		var names []string
		registry.ForEach(func(id SystemID, desc Desc) {
			names = append(names, desc.Name)
		})

		Expect(names).To(Equal([]string{"one", "two", "three"}))
	})
})
