package noc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/netmsg"
	"github.com/sarchlab/carbonsim/simtime"
)

var _ = Describe("Model", func() {

	var cfg Config

	BeforeEach(func() {
		cfg = Config{
			TotalCores: 16,
			Dimensions: 2,
			Tw2:        1,
			S:          1,
			WidthBits:  32,
		}
	})

	It("routes a self-send with zero latency", func() {
		m := New(cfg)
		p := netmsg.Packet{Sender: 0, Receiver: 0, Length: 32, TimeFS: 1000}

		hop := m.Route(p, 0)

		Expect(hop.FinalDest).To(Equal(ids.CoreID(0)))
		Expect(hop.ArrivalFS).To(Equal(int64(1000)))
	})

	It("matches the 2D mesh reference latency of 20ns for core0 to core5", func() {
		m := New(cfg)
		p := netmsg.Packet{Sender: 0, Receiver: 5, Length: 32, TimeFS: 0}

		hop := m.Route(p, 0)

		Expect(hop.ArrivalFS).To(Equal(int64(simtime.NS(20))))
	})

	It("adds the configured processing cost on top of wire latency", func() {
		cfg.ProcessingCost = simtime.NS(5)
		m := New(cfg)
		p := netmsg.Packet{Sender: 0, Receiver: 5, Length: 32, TimeFS: 0}

		hop := m.Route(p, 0)

		Expect(hop.ArrivalFS).To(Equal(int64(simtime.NS(25))))
	})

	It("increases latency once contention utilization is applied", func() {
		m := New(cfg)
		p := netmsg.Packet{Sender: 0, Receiver: 5, Length: 32, TimeFS: 0}

		baseline := m.Route(p, 0).ArrivalFS

		m.ApplyGlobalUtilization(0, 0.5)
		withContention := m.Route(p, 0).ArrivalFS

		Expect(withContention).To(BeNumerically(">", baseline))
	})

	It("panics when global utilization is out of [0,1)", func() {
		m := New(cfg)
		Expect(func() { m.ApplyGlobalUtilization(0, 1) }).To(Panic())
		Expect(func() { m.ApplyGlobalUtilization(0, -0.1) }).To(Panic())
	})

	It("tracks local utilization as flits sent over elapsed time", func() {
		m := New(cfg)
		p := netmsg.Packet{Sender: 0, Receiver: 5, Length: 32, TimeFS: 0}

		m.ResetUtilizationWindow(0, simtime.NS(0))
		m.Route(p, 0)

		util := m.LocalUtilization(0, simtime.NS(10))
		Expect(util).To(BeNumerically(">", 0))
	})

	It("reports zero local utilization before any window has elapsed", func() {
		m := New(cfg)
		Expect(m.LocalUtilization(0, simtime.Zero)).To(Equal(0.0))
	})
})
