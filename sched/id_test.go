package sched

import (
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("slotPool", func() {
	var pool *slotPool

	BeforeEach(func() {
		pool = newSlotPool()
	})

	It("should burn slot zero", func() {
		index, generation := pool.acquire()

		Expect(index).To(BeEquivalentTo(1))
		Expect(generation).To(BeEquivalentTo(0))
	})

	It("should bump the generation on release", func() {
		index, generation := pool.acquire()
		pool.release(index)

		again, nextGen := pool.acquire()

		Expect(again).To(Equal(index))
		Expect(nextGen).To(Equal(generation + 1))
		Expect(pool.live(index, generation)).To(BeFalse())
		Expect(pool.live(index, nextGen)).To(BeTrue())
	})

	It("should panic when releasing a slot it never handed out", func() {
		Expect(func() { pool.release(5) }).To(Panic())
		Expect(func() { pool.release(0) }).To(Panic())
	})
})

var _ = Describe("SystemID", func() {
	It("should pack index and generation", func() {
		id := makeSystemID(3, 7)

		Expect(id.index()).To(BeEquivalentTo(3))
		Expect(id.generation()).To(BeEquivalentTo(7))
		Expect(id.String()).To(Equal("3.7"))
	})

	It("should keep the nil handle distinct from live handles", func() {
		Expect(makeSystemID(1, 0)).ToNot(Equal(NilSystem))
	})
})

var _ = Describe("TimerID", func() {
	It("should pack index and generation", func() {
		id := makeTimerID(2, 4)

		Expect(id.index()).To(BeEquivalentTo(2))
		Expect(id.generation()).To(BeEquivalentTo(4))
		Expect(id.String()).To(Equal("t2.4"))
	})
})

var _ = Describe("IDGenerator", func() {
	It("should hand out increasing sequential IDs by default", func() {
		g := GetIDGenerator()

		first, err := strconv.ParseUint(g.Generate(), 10, 64)
		Expect(err).ToNot(HaveOccurred())

		second, err := strconv.ParseUint(g.Generate(), 10, 64)
		Expect(err).ToNot(HaveOccurred())

		Expect(second).To(Equal(first + 1))
	})
})
