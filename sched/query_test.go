package sched

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Footprint", func() {
	It("should not conflict when both sides only read", func() {
		a := Footprint{Reads: []ComponentID{1, 2}}
		b := Footprint{Reads: []ComponentID{2, 3}}

		Expect(a.ConflictsWith(b)).To(BeFalse())
		Expect(b.ConflictsWith(a)).To(BeFalse())
	})

	It("should conflict when both sides write the same component", func() {
		a := Footprint{Writes: []ComponentID{7}}
		b := Footprint{Writes: []ComponentID{7}}

		Expect(a.ConflictsWith(b)).To(BeTrue())
	})

	It("should conflict when one side writes what the other reads", func() {
		writer := Footprint{Writes: []ComponentID{4}}
		reader := Footprint{Reads: []ComponentID{4}}

		Expect(writer.ConflictsWith(reader)).To(BeTrue())
		Expect(reader.ConflictsWith(writer)).To(BeTrue())
	})

	It("should not conflict on disjoint components", func() {
		a := Footprint{Reads: []ComponentID{1}, Writes: []ComponentID{2}}
		b := Footprint{Reads: []ComponentID{3}, Writes: []ComponentID{4}}

		Expect(a.ConflictsWith(b)).To(BeFalse())
	})

	It("should not conflict with an empty footprint", func() {
		a := Footprint{Reads: []ComponentID{1}, Writes: []ComponentID{2}}

		Expect(a.ConflictsWith(Footprint{})).To(BeFalse())
		Expect(Footprint{}.ConflictsWith(a)).To(BeFalse())
	})
})

var _ = Describe("Iter", func() {
	It("should count entities across batches", func() {
		it := &Iter{
			Batches: []Batch{
				{Entities: []uint64{1, 2, 3}},
				{Entities: []uint64{4}},
			},
		}

		Expect(it.EntityCount()).To(Equal(4))
	})
})
