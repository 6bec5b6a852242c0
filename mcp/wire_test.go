package mcp_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/mcp"
	"github.com/sarchlab/carbonsim/netmsg"
	"github.com/sarchlab/carbonsim/simtime"
)

func dispatchSync(s *mcp.Server, requester ids.CoreID, payload []byte) mcp.SyncReply {
	resp, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPSync, Requester: requester, Payload: payload})
	Expect(err).NotTo(HaveOccurred())
	Expect(resp.Ok).To(BeTrue())

	reply, err := mcp.DecodeSyncReply(resp.Payload)
	Expect(err).NotTo(HaveOccurred())
	return reply
}

var _ = Describe("Server.Dispatch sync wire contract", func() {

	var s *mcp.Server

	BeforeEach(func() {
		s = mcp.NewServer(ids.CoreID(8), mcp.ClockSkewNone)
	})

	It("carries a contended mutex grant in the unlocking call's response", func() {
		const id = mcp.ID(1)

		// A locks at t=100: granted synchronously, release = request time.
		reply := dispatchSync(s, coreA, mcp.EncodeMutexLock(id, simtime.NS(100)))
		Expect(reply.Grants).To(ConsistOf(mcp.SyncGrant{Core: coreA, Release: simtime.NS(100)}))

		// B requests at t=150: no grant yet, it queues.
		reply = dispatchSync(s, coreB, mcp.EncodeMutexLock(id, simtime.NS(150)))
		Expect(reply.Grants).To(BeEmpty())

		// A unlocks at t=300: the response reports B's grant at release=300.
		reply = dispatchSync(s, coreA, mcp.EncodeMutexUnlock(id, simtime.NS(300)))
		Expect(reply.Grants).To(ConsistOf(mcp.SyncGrant{Core: coreB, Release: simtime.NS(300)}))
	})

	It("releases a full barrier through the final arrival's response", func() {
		const id = mcp.ID(2)
		arrivals := []simtime.SimTime{simtime.NS(100), simtime.NS(150), simtime.NS(90), simtime.NS(200)}

		for i, at := range arrivals[:3] {
			reply := dispatchSync(s, ids.CoreID(i), mcp.EncodeBarrierWait(id, 4, at))
			Expect(reply.Grants).To(BeEmpty())
		}

		reply := dispatchSync(s, ids.CoreID(3), mcp.EncodeBarrierWait(id, 4, arrivals[3]))
		Expect(reply.Grants).To(HaveLen(4))
		for _, g := range reply.Grants {
			Expect(g.Release).To(Equal(simtime.NS(200)))
		}
	})

	It("round-trips a futex wait/wake pair with the woken count in Result", func() {
		const uaddr = uint64(0x1000)

		reply := dispatchSync(s, coreA, mcp.EncodeFutexWait(uaddr, 0, simtime.NS(10)))
		Expect(reply.Grants).To(BeEmpty())

		reply = dispatchSync(s, coreB, mcp.EncodeFutexWake(uaddr, 1, 0, simtime.NS(20)))
		Expect(reply.Result).To(Equal(uint32(1)))
		Expect(reply.Grants).To(ConsistOf(mcp.SyncGrant{Core: coreA, Release: simtime.NS(20)}))
	})

	It("reports requeue counts in Result and Result2", func() {
		const uaddr1, uaddr2 = uint64(0x10), uint64(0x20)

		for i := 0; i < 3; i++ {
			dispatchSync(s, ids.CoreID(i), mcp.EncodeFutexWait(uaddr1, 0, simtime.NS(0)))
		}

		reply := dispatchSync(s, coreA, mcp.EncodeFutexRequeue(uaddr1, uaddr2, 1, 1, simtime.NS(5)))
		Expect(reply.Result).To(Equal(uint32(1)))
		Expect(reply.Result2).To(Equal(uint32(1)))
	})

	It("reports a cancelled wait in Result", func() {
		const uaddr = uint64(0x2000)

		dispatchSync(s, coreA, mcp.EncodeFutexWait(uaddr, 0, simtime.NS(0)))

		reply := dispatchSync(s, coreA, mcp.EncodeFutexCancelWait(uaddr, simtime.NS(1)))
		Expect(reply.Result).To(Equal(uint32(1)))

		reply = dispatchSync(s, coreA, mcp.EncodeFutexCancelWait(uaddr, simtime.NS(2)))
		Expect(reply.Result).To(Equal(uint32(0)))
	})

	It("moves a signaled cond waiter through the wire path", func() {
		const mutexID, condID = mcp.ID(1), mcp.ID(2)

		dispatchSync(s, coreA, mcp.EncodeMutexLock(mutexID, simtime.NS(0)))
		reply := dispatchSync(s, coreA, mcp.EncodeCondWait(condID, mutexID, simtime.NS(10)))
		Expect(reply.Grants).To(BeEmpty()) // mutex released, A parked on the cond

		// the mutex is free, so the signaled waiter re-acquires immediately.
		reply = dispatchSync(s, coreB, mcp.EncodeCondSignal(condID, simtime.NS(30)))
		Expect(reply.Grants).To(ConsistOf(mcp.SyncGrant{Core: coreA, Release: simtime.NS(30)}))
	})

	It("rejects a truncated sync payload", func() {
		_, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPSync, Requester: coreA, Payload: []byte{1, 2}})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Server.Dispatch magic wire contract", func() {

	var s *mcp.Server

	BeforeEach(func() {
		s = mcp.NewServer(ids.CoreID(8), mcp.ClockSkewNone)
	})

	It("toggles the ROI", func() {
		_, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPMagic, Requester: coreA, Payload: mcp.EncodeMagicROI(true)})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Magic.InROI()).To(BeTrue())

		_, err = s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPMagic, Requester: coreA, Payload: mcp.EncodeMagicROI(false)})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Magic.InROI()).To(BeFalse())
	})

	It("round-trips a mode transition", func() {
		_, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPMagic, Requester: coreA, Payload: mcp.EncodeMagicSetMode(mcp.ModeDetailed)})
		Expect(err).NotTo(HaveOccurred())

		resp, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPMagic, Requester: coreA, Payload: mcp.EncodeMagicGetMode()})
		Expect(err).NotTo(HaveOccurred())

		v, err := mcp.DecodeMagicReply(resp.Payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(mcp.InstrumentationMode(v)).To(Equal(mcp.ModeDetailed))
	})

	It("round-trips the per-core MHz get/set", func() {
		_, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPMagic, Requester: coreA, Payload: mcp.EncodeMagicSetMHz(2, 2400)})
		Expect(err).NotTo(HaveOccurred())

		resp, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPMagic, Requester: coreA, Payload: mcp.EncodeMagicGetMHz(2)})
		Expect(err).NotTo(HaveOccurred())

		v, err := mcp.DecodeMagicReply(resp.Payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(math.Float64frombits(v)).To(Equal(2400.0))
	})
})

var _ = Describe("Server.Dispatch clock-skew wire contract", func() {

	It("reports the delay a fast core must wait under the barrier scheme", func() {
		s := mcp.NewServer(ids.CoreID(8), mcp.ClockSkewBarrier)

		resp, err := s.Dispatch(netmsg.MCPRequest{
			Kind: netmsg.MCPClockSkew, Requester: coreA,
			Payload: mcp.EncodeClockSkewReport(simtime.NS(100)),
		})
		Expect(err).NotTo(HaveOccurred())
		delay, err := mcp.DecodeClockSkewReply(resp.Payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(delay).To(Equal(simtime.Zero))

		resp, err = s.Dispatch(netmsg.MCPRequest{
			Kind: netmsg.MCPClockSkew, Requester: coreB,
			Payload: mcp.EncodeClockSkewReport(simtime.NS(150)),
		})
		Expect(err).NotTo(HaveOccurred())
		delay, err = mcp.DecodeClockSkewReply(resp.Payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(delay).To(Equal(simtime.NS(50)))
	})
})
