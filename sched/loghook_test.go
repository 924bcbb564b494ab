package sched

import (
	"bytes"
	"errors"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TickLogger", func() {
	var (
		buf    bytes.Buffer
		logger *TickLogger
	)

	BeforeEach(func() {
		buf.Reset()
		logger = NewTickLogger(log.New(&buf, "", 0))
	})

	It("should log tick completions", func() {
		logger.Func(HookCtx{
			Pos:  HookPosTickEnd,
			Item: TickResult{Tick: 3, Time: 1.5, Ran: 2},
		})

		Expect(buf.String()).To(ContainSubstring("tick 3"))
		Expect(buf.String()).To(ContainSubstring("ran 2"))
	})

	It("should log system failures", func() {
		logger.Func(HookCtx{
			Pos:    HookPosSystemFail,
			Detail: errors.New("system motion failed on tick 3: bad data"),
		})

		Expect(buf.String()).To(ContainSubstring("motion"))
	})

	It("should stay quiet on other positions", func() {
		logger.Func(HookCtx{Pos: HookPosTickStart, Item: uint64(3)})

		Expect(buf.String()).To(BeEmpty())
	})
})
