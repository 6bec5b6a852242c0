package mcp_test

import (
	"encoding/binary"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/mcp"
	"github.com/sarchlab/carbonsim/netmsg"
	"github.com/sarchlab/carbonsim/simtime"
)

const (
	coreA = ids.CoreID(0)
	coreB = ids.CoreID(1)
)

var _ = Describe("SyncServer mutex", func() {
	// A locks at t=100 and holds until t=300; B requests the same mutex
	// at t=150 and must wait until A's unlock, paying a 150ns SYNC cost
	// (300-150).
	It("grants a contended waiter at max(request time, unlock time)", func() {
		s := mcp.NewSyncServer()
		const id = mcp.ID(1)

		var releaseA, releaseB simtime.SimTime
		s.MutexLock(id, coreA, simtime.NS(100), func(r simtime.SimTime) { releaseA = r })
		Expect(releaseA).To(Equal(simtime.NS(100)))

		s.MutexLock(id, coreB, simtime.NS(150), func(r simtime.SimTime) { releaseB = r })
		Expect(releaseB).To(Equal(simtime.Zero)) // not granted yet

		locked, holder, waiting := s.MutexState(id)
		Expect(locked).To(BeTrue())
		Expect(holder).To(Equal(coreA))
		Expect(waiting).To(Equal(1))

		s.MutexUnlock(id, coreA, simtime.NS(300))
		Expect(releaseB).To(Equal(simtime.NS(300)))

		cost := releaseB.Sub(simtime.NS(150))
		Expect(cost).To(Equal(simtime.NS(150)))

		locked, holder, waiting = s.MutexState(id)
		Expect(locked).To(BeTrue())
		Expect(holder).To(Equal(coreB))
		Expect(waiting).To(Equal(0))
	})

	It("frees the mutex when the last holder unlocks with no waiters", func() {
		s := mcp.NewSyncServer()
		const id = mcp.ID(2)

		s.MutexLock(id, coreA, simtime.NS(0), func(simtime.SimTime) {})
		s.MutexUnlock(id, coreA, simtime.NS(10))

		locked, holder, _ := s.MutexState(id)
		Expect(locked).To(BeFalse())
		Expect(holder).To(Equal(ids.InvalidCore))
	})
})

var _ = Describe("SyncServer barrier", func() {
	// four arrivals at {100,150,90,200} all release at 200ns, the latest
	// arrival time.
	It("releases every waiter at the max arrival time once the count is met", func() {
		s := mcp.NewSyncServer()
		const id = mcp.ID(1)

		releases := make([]simtime.SimTime, 4)
		arrivals := []simtime.SimTime{simtime.NS(100), simtime.NS(150), simtime.NS(90), simtime.NS(200)}

		for i, at := range arrivals {
			i := i
			s.BarrierWait(id, 4, ids.CoreID(i), at, func(r simtime.SimTime) { releases[i] = r })
		}

		for _, r := range releases {
			Expect(r).To(Equal(simtime.NS(200)))
		}
	})

	It("does not release before every participant has arrived", func() {
		s := mcp.NewSyncServer()
		const id = mcp.ID(5)

		released := false
		s.BarrierWait(id, 2, coreA, simtime.NS(1), func(simtime.SimTime) { released = true })

		Expect(released).To(BeFalse())
	})
})

var _ = Describe("SyncServer condition variables", func() {
	It("moves a signaled waiter back onto the mutex's queue", func() {
		s := mcp.NewSyncServer()
		const mutexID = mcp.ID(1)
		const condID = mcp.ID(2)

		s.MutexLock(mutexID, coreA, simtime.NS(0), func(simtime.SimTime) {})

		var released simtime.SimTime
		s.CondWait(condID, mutexID, coreA, simtime.NS(10), func(r simtime.SimTime) { released = r })

		// CondWait released the mutex, so B can now acquire it.
		var releaseB simtime.SimTime
		s.MutexLock(mutexID, coreB, simtime.NS(20), func(r simtime.SimTime) { releaseB = r })
		Expect(releaseB).To(Equal(simtime.NS(20)))

		s.CondSignal(condID, simtime.NS(30))
		Expect(released).To(Equal(simtime.Zero)) // still queued behind B

		s.MutexUnlock(mutexID, coreB, simtime.NS(40))
		Expect(released).To(Equal(simtime.NS(40)))
	})
})

var _ = Describe("SyncServer futex", func() {
	It("wakes waiters matching the bitset in FIFO order up to count", func() {
		s := mcp.NewSyncServer()
		const uaddr = uint64(0x1000)

		var released []ids.CoreID
		for i := 0; i < 3; i++ {
			i := i
			s.FutexWaitReq(uaddr, ids.CoreID(i), simtime.NS(0), mcp.MatchAnyBitset, func(simtime.SimTime) {
				released = append(released, ids.CoreID(i))
			})
		}

		woken := s.FutexWake(uaddr, 2, mcp.MatchAnyBitset, simtime.NS(5))

		Expect(woken).To(Equal(2))
		Expect(released).To(Equal([]ids.CoreID{0, 1}))
	})

	It("cancels a waiter on timeout", func() {
		s := mcp.NewSyncServer()
		const uaddr = uint64(0x2000)

		s.FutexWaitReq(uaddr, coreA, simtime.NS(0), mcp.MatchAnyBitset, func(simtime.SimTime) {})

		Expect(s.FutexCancelWait(uaddr, coreA)).To(BeTrue())
		Expect(s.FutexCancelWait(uaddr, coreA)).To(BeFalse())
	})

	It("requeues remaining waiters onto a second address without waking them", func() {
		s := mcp.NewSyncServer()
		const uaddr1, uaddr2 = uint64(0x10), uint64(0x20)

		wokenCount := 0
		for i := 0; i < 3; i++ {
			s.FutexWaitReq(uaddr1, ids.CoreID(i), simtime.NS(0), mcp.MatchAnyBitset, func(simtime.SimTime) { wokenCount++ })
		}

		woken, requeued := s.FutexRequeue(uaddr1, uaddr2, 1, 1, simtime.NS(10))

		Expect(woken).To(Equal(1))
		Expect(requeued).To(Equal(1))
		Expect(wokenCount).To(Equal(1))

		// the remaining requeued waiter can now be woken via uaddr2.
		Expect(s.FutexWake(uaddr2, 1, mcp.MatchAnyBitset, simtime.NS(20))).To(Equal(1))
	})
})

var _ = Describe("ClockSkewServer", func() {
	It("never delays under the none scheme", func() {
		s := mcp.NewClockSkewServer(mcp.ClockSkewNone)
		Expect(s.Report(coreA, simtime.NS(1000))).To(Equal(simtime.Zero))
	})

	It("holds a fast core back to the slowest reported core under barrier", func() {
		s := mcp.NewClockSkewServer(mcp.ClockSkewBarrier)
		Expect(s.Report(coreA, simtime.NS(100))).To(Equal(simtime.Zero))

		delay := s.Report(coreB, simtime.NS(150))
		Expect(delay).To(Equal(simtime.NS(50)))
		Expect(s.Slowest()).To(Equal(simtime.NS(100)))
	})
})

var _ = Describe("MagicServer", func() {
	It("starts outside the ROI in fast-forward mode", func() {
		m := mcp.NewMagicServer()
		Expect(m.InROI()).To(BeFalse())
		Expect(m.Mode()).To(Equal(mcp.ModeFastForward))
	})

	It("tracks ROI toggles, mode transitions, and per-core MHz", func() {
		m := mcp.NewMagicServer()
		m.SetROI(true)
		Expect(m.InROI()).To(BeTrue())

		m.SetMode(mcp.ModeDetailed)
		Expect(m.Mode()).To(Equal(mcp.ModeDetailed))

		m.SetMHz(0, 2400)
		Expect(m.MHz(0)).To(Equal(2400.0))
		Expect(m.MHz(1)).To(Equal(0.0))
	})
})

var _ = Describe("SyscallServer", func() {
	It("reports not-intercepted for an unregistered syscall number", func() {
		s := mcp.NewSyscallServer()
		resp := s.Dispatch(mcp.SyscallRequest{SyscallNum: 42})
		Expect(resp.Intercepted).To(BeFalse())
	})

	It("dispatches to a registered handler", func() {
		s := mcp.NewSyscallServer()
		s.Register(1, func(req mcp.SyscallRequest) mcp.SyscallResponse {
			return mcp.SyscallResponse{Result: []byte{1, 2, 3}}
		})

		resp := s.Dispatch(mcp.SyscallRequest{SyscallNum: 1})
		Expect(resp.Intercepted).To(BeTrue())
		Expect(resp.Result).To(Equal([]byte{1, 2, 3}))
	})

	It("panics when the same syscall number is registered twice", func() {
		s := mcp.NewSyscallServer()
		s.Register(1, func(mcp.SyscallRequest) mcp.SyscallResponse { return mcp.SyscallResponse{} })
		Expect(func() { s.Register(1, func(mcp.SyscallRequest) mcp.SyscallResponse { return mcp.SyscallResponse{} }) }).To(Panic())
	})
})

var _ = Describe("UtilizationAggregator", func() {
	It("clamps values to [0, 0.999999]", func() {
		u := mcp.NewUtilizationAggregator()
		Expect(u.Apply(mcp.UtilizationUpdate{Value: -1}).Value).To(Equal(0.0))
		Expect(u.Apply(mcp.UtilizationUpdate{Value: 1}).Value).To(Equal(0.999999))
	})

	It("has the latest update win over prior updates from other nodes", func() {
		u := mcp.NewUtilizationAggregator()
		u.Apply(mcp.UtilizationUpdate{Node: 0, Value: 0.2})
		latest := u.Apply(mcp.UtilizationUpdate{Node: 1, Value: 0.8})

		Expect(latest.Value).To(Equal(0.8))
		Expect(u.Current().Value).To(Equal(0.8))
	})
})

var _ = Describe("Server.Dispatch", func() {
	It("rejects an unrecognized MCPRequestKind", func() {
		s := mcp.NewServer(coreA, mcp.ClockSkewNone)
		_, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPRequestKind(99)})
		Expect(err).To(HaveOccurred())
	})

	It("round-trips a syscall request through the wire payload", func() {
		s := mcp.NewServer(coreA, mcp.ClockSkewNone)
		s.Syscall.Register(7, func(req mcp.SyscallRequest) mcp.SyscallResponse {
			return mcp.SyscallResponse{Result: []byte{0xAB}}
		})

		payload := make([]byte, 8)
		binary.LittleEndian.PutUint64(payload, 7)

		resp, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPSyscall, Requester: coreA, Payload: payload})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Ok).To(BeTrue())
		Expect(resp.Payload[8:]).To(Equal([]byte{0xAB}))
	})

	It("round-trips a utilization update through the wire payload", func() {
		s := mcp.NewServer(coreA, mcp.ClockSkewNone)

		payload := make([]byte, 8)
		binary.LittleEndian.PutUint64(payload, math.Float64bits(0.5))

		resp, err := s.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPUtilization, Requester: coreA, Payload: payload})
		Expect(err).NotTo(HaveOccurred())

		got := math.Float64frombits(binary.LittleEndian.Uint64(resp.Payload))
		Expect(got).To(Equal(0.5))
	})
})
