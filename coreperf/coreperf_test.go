package coreperf_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/carbonsim/coreperf"
	"github.com/sarchlab/carbonsim/coreperf/branchpred"
	"github.com/sarchlab/carbonsim/dyninst"
	"github.com/sarchlab/carbonsim/simtime"
)

var _ = Describe("Model", func() {

	var period simtime.Period

	BeforeEach(func() {
		period = simtime.NewPeriod(simtime.NS(1))
	})

	It("advances elapsed time by a fixed instruction's cost", func() {
		m := coreperf.New(coreperf.Config{Period: period})
		ok := m.Execute(dyninst.Fixed(simtime.NS(42)))

		Expect(ok).To(BeTrue())
		Expect(m.Elapsed()).To(Equal(simtime.NS(42)))
	})

	It("costs a static instruction by its configured cycles times the period", func() {
		m := coreperf.New(coreperf.Config{
			Period:      period,
			StaticCosts: coreperf.StaticCosts{"alu": 3},
		})

		m.Execute(dyninst.Static("alu"))

		Expect(m.Elapsed()).To(Equal(simtime.NS(3)))
	})

	It("costs an unconfigured static kind as zero cycles", func() {
		m := coreperf.New(coreperf.Config{Period: period})
		m.Execute(dyninst.Static("unknown"))
		Expect(m.Elapsed()).To(Equal(simtime.Zero))
	})

	It("advances elapsed to the spawn marker time, never backward", func() {
		m := coreperf.New(coreperf.Config{Period: period})
		m.Execute(dyninst.Fixed(simtime.NS(100)))

		m.Execute(dyninst.Spawn(simtime.NS(50)))
		Expect(m.Elapsed()).To(Equal(simtime.NS(100)))

		m.Execute(dyninst.Spawn(simtime.NS(200)))
		Expect(m.Elapsed()).To(Equal(simtime.NS(200)))
	})

	Describe("branch costing without a predictor", func() {
		It("always costs one cycle regardless of outcome", func() {
			m := coreperf.New(coreperf.Config{Period: period})
			m.Execute(dyninst.Branch(0x100, 0x200, true))
			Expect(m.Elapsed()).To(Equal(simtime.NS(1)))

			correct, incorrect := m.BranchCounters()
			Expect(correct).To(BeZero())
			Expect(incorrect).To(BeZero())
		})
	})

	Describe("branch costing with a one-bit predictor", func() {
		It("costs one cycle on a correct prediction and the mispredict penalty otherwise", func() {
			m := coreperf.New(coreperf.Config{
				Period:                  period,
				Predictor:               branchpred.NewOneBit(16),
				MispredictPenaltyCycles: 10,
			})

			// addr 0x10 starts predicting not-taken; the first outcome always
			// mispredicts if it is taken.
			m.Execute(dyninst.Branch(0x10, 0x20, true))
			_, incorrect := m.BranchCounters()
			Expect(incorrect).To(Equal(uint64(1)))
			Expect(m.Elapsed()).To(Equal(simtime.NS(10)))

			// predictor now knows 0x10 is taken; repeating it is correct.
			m.Execute(dyninst.Branch(0x10, 0x20, true))
			correct, _ := m.BranchCounters()
			Expect(correct).To(Equal(uint64(1)))
			Expect(m.Elapsed()).To(Equal(simtime.NS(11)))
		})
	})

	Describe("string instructions and the dyn-info FIFO", func() {
		It("retires immediately when enough dyn-info has already arrived", func() {
			m := coreperf.New(coreperf.Config{Period: period})
			m.PushInfo(dyninst.MemoryRead(simtime.NS(5)))
			m.PushInfo(dyninst.MemoryWrite(simtime.NS(7)))

			ok := m.Execute(dyninst.String(2))

			Expect(ok).To(BeTrue())
			Expect(m.Elapsed()).To(Equal(simtime.NS(12)))
		})

		It("parks when dyn-info is short and retires once PushInfo supplies the rest", func() {
			m := coreperf.New(coreperf.Config{Period: period})
			m.PushInfo(dyninst.MemoryRead(simtime.NS(5)))

			ok := m.Execute(dyninst.String(2))
			Expect(ok).To(BeFalse())
			Expect(m.Elapsed()).To(Equal(simtime.Zero))

			m.PushInfo(dyninst.MemoryWrite(simtime.NS(7)))
			Expect(m.Elapsed()).To(Equal(simtime.NS(12)))
		})
	})

	It("lets SetPeriod change the cycle cost of subsequent instructions", func() {
		m := coreperf.New(coreperf.Config{
			Period:      period,
			StaticCosts: coreperf.StaticCosts{"alu": 1},
		})

		m.SetPeriod(simtime.NewPeriod(simtime.NS(4)))
		m.Execute(dyninst.Static("alu"))

		Expect(m.Elapsed()).To(Equal(simtime.NS(4)))
	})
})
