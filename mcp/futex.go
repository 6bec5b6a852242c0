package mcp

import (
	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/simtime"
)

// FutexOp tags a futex(2) operation, covering the intercepted subset:
// WAIT/WAKE/REQUEUE/CMP_REQUEUE/WAIT_BITSET/WAKE_BITSET/WAKE_OP.
type FutexOp int

const (
	FutexWait FutexOp = iota
	FutexWake
	FutexRequeue
	FutexCmpRequeue
	FutexWaitBitset
	FutexWakeBitset
	FutexWakeOp
)

// MatchAnyBitset is FUTEX_BITSET_MATCH_ANY: a waiter or waker with this
// bitset matches everything.
const MatchAnyBitset uint32 = ^uint32(0)

type futexWaiter struct {
	requester ids.CoreID
	reqTime   simtime.SimTime
	bitset    uint32
	grant     GrantFunc
}

type futexState struct {
	waiters []futexWaiter
}

func (s *SyncServer) futex(uaddr uint64) *futexState {
	f, ok := s.futexes[uaddr]
	if !ok {
		f = &futexState{}
		s.futexes[uaddr] = f
	}
	return f
}

// FutexWaitReq enqueues requester on uaddr's wait queue, honoring an
// optional bitset (MatchAnyBitset if the call was plain FUTEX_WAIT). The
// value comparison futex(2) normally performs against *uaddr happens in
// the host syscall pass-through layer before this request is ever
// formed; by the time this reaches the sync server the wait is already
// known to be valid.
//
// On timeout the caller invokes FutexCancelWait instead of waiting for a
// grant.
func (s *SyncServer) FutexWaitReq(uaddr uint64, requester ids.CoreID, tReq simtime.SimTime, bitset uint32, grant GrantFunc) {
	if bitset == 0 {
		bitset = MatchAnyBitset
	}
	f := s.futex(uaddr)
	f.waiters = append(f.waiters, futexWaiter{requester: requester, reqTime: tReq, bitset: bitset, grant: grant})
}

// FutexCancelWait removes requester from uaddr's wait queue on timeout;
// the caller hands the workload the distinguished timed-out return.
// Reports whether a matching waiter was found and removed.
func (s *SyncServer) FutexCancelWait(uaddr uint64, requester ids.CoreID) bool {
	f := s.futex(uaddr)
	for i, w := range f.waiters {
		if w.requester == requester {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// FutexWake wakes up to count waiters on uaddr whose bitset intersects
// mask, in FIFO order, granting each at tReq. Returns the number woken.
func (s *SyncServer) FutexWake(uaddr uint64, count int, mask uint32, tReq simtime.SimTime) int {
	if mask == 0 {
		mask = MatchAnyBitset
	}
	f := s.futex(uaddr)
	woken := 0
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if woken < count && w.bitset&mask != 0 {
			w.grant(tReq)
			woken++
			continue
		}
		remaining = append(remaining, w)
	}
	f.waiters = remaining
	return woken
}

// FutexRequeue wakes up to nWake waiters on uaddr (any bitset), then
// moves up to nRequeue of the remaining waiters onto uaddr2's queue
// without waking them, matching FUTEX_REQUEUE/FUTEX_CMP_REQUEUE. The
// CMP variant's *uaddr == val3 precondition, like the WAIT value check,
// is assumed already validated upstream.
func (s *SyncServer) FutexRequeue(uaddr, uaddr2 uint64, nWake, nRequeue int, tReq simtime.SimTime) (woken, requeued int) {
	woken = s.FutexWake(uaddr, nWake, MatchAnyBitset, tReq)

	f := s.futex(uaddr)
	f2 := s.futex(uaddr2)

	n := nRequeue
	if n > len(f.waiters) {
		n = len(f.waiters)
	}
	f2.waiters = append(f2.waiters, f.waiters[:n]...)
	f.waiters = f.waiters[n:]

	return woken, n
}

// FutexWakeOp performs FUTEX_WAKE_OP: wake up to nWake waiters on uaddr
// unconditionally, then — if cmpResult (the caller-evaluated outcome of
// the op's comparison against uaddr2's new value) holds — wake up to
// nWake2 waiters on uaddr2 as well. The atomic op against uaddr2 itself is
// evaluated by the syscall pass-through layer; the MCP only sees its
// boolean result, keeping memory semantics out of the sync server.
func (s *SyncServer) FutexWakeOp(uaddr, uaddr2 uint64, nWake, nWake2 int, cmpResult bool, tReq simtime.SimTime) (woken, woken2 int) {
	woken = s.FutexWake(uaddr, nWake, MatchAnyBitset, tReq)
	if cmpResult {
		woken2 = s.FutexWake(uaddr2, nWake2, MatchAnyBitset, tReq)
	}
	return woken, woken2
}
