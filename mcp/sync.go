// Package mcp implements the Master Control Process: the single logical
// endpoint that serializes syscall emulation, synchronization primitives,
// utilization gossip, clock-skew bounding, and the magic interface. The
// MCP is single-threaded by construction, so every server here is safe
// to call from a single event-processing goroutine with no internal
// locking.
package mcp

import (
	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/simtime"
)

// ID names a synchronization primitive (mutex, cond, or barrier). The
// workload's pthread object address serves as the handle; it is treated
// as an opaque integer.
type ID uint64

// GrantFunc is called exactly once when a sync request is satisfied,
// carrying the simulated release time the requester's SYNC instruction
// should be costed at. It may be called synchronously (lock was free) or
// later, when some other operation unblocks the waiter.
type GrantFunc func(release simtime.SimTime)

type mutexWaiter struct {
	requester ids.CoreID
	reqTime   simtime.SimTime
	grant     GrantFunc
}

type mutexState struct {
	locked  bool
	holder  ids.CoreID
	waiters []mutexWaiter
}

// SyncServer implements mutex / condition variable / barrier.
// Primitives are created lazily on first use, keyed by ID.
type SyncServer struct {
	mutexes  map[ID]*mutexState
	conds    map[ID]*condState
	barriers map[ID]*barrierState
	futexes  map[uint64]*futexState
}

// NewSyncServer constructs an empty sync server.
func NewSyncServer() *SyncServer {
	return &SyncServer{
		mutexes:  map[ID]*mutexState{},
		conds:    map[ID]*condState{},
		barriers: map[ID]*barrierState{},
		futexes:  map[uint64]*futexState{},
	}
}

func (s *SyncServer) mutex(id ID) *mutexState {
	m, ok := s.mutexes[id]
	if !ok {
		m = &mutexState{holder: ids.InvalidCore}
		s.mutexes[id] = m
	}
	return m
}

// MutexLock grants the mutex immediately (release = tReq) if free, else
// enqueues requester and calls grant later from MutexUnlock.
func (s *SyncServer) MutexLock(id ID, requester ids.CoreID, tReq simtime.SimTime, grant GrantFunc) {
	m := s.mutex(id)
	if !m.locked {
		m.locked = true
		m.holder = requester
		grant(tReq)
		return
	}
	m.waiters = append(m.waiters, mutexWaiter{requester: requester, reqTime: tReq, grant: grant})
}

// MutexUnlock wakes the head of the waiter queue, if any, granting it at
// release = max(waiter's own request time, this unlock's request time).
// If the queue is empty the mutex becomes free.
func (s *SyncServer) MutexUnlock(id ID, _ ids.CoreID, tReq simtime.SimTime) {
	m := s.mutex(id)
	if len(m.waiters) == 0 {
		m.locked = false
		m.holder = ids.InvalidCore
		return
	}
	head := m.waiters[0]
	m.waiters = m.waiters[1:]
	m.holder = head.requester
	release := simtime.Max(head.reqTime, tReq)
	head.grant(release)
}

// MutexState reports whether id is currently held, for tests asserting
// round-trip idempotence (lock then unlock restores the initial state).
func (s *SyncServer) MutexState(id ID) (locked bool, holder ids.CoreID, waiting int) {
	m := s.mutex(id)
	return m.locked, m.holder, len(m.waiters)
}

type condWaiter struct {
	requester ids.CoreID
	mutexID   ID
	reqTime   simtime.SimTime
	grant     GrantFunc
}

type condState struct {
	waiters []condWaiter
}

func (s *SyncServer) cond(id ID) *condState {
	c, ok := s.conds[id]
	if !ok {
		c = &condState{}
		s.conds[id] = c
	}
	return c
}

// CondWait releases mutexID (as MutexUnlock would) and enqueues requester
// on the condition variable. grant fires once this waiter is signaled (or
// broadcast to) and has re-acquired the mutex.
func (s *SyncServer) CondWait(id, mutexID ID, requester ids.CoreID, tReq simtime.SimTime, grant GrantFunc) {
	s.MutexUnlock(mutexID, requester, tReq)

	c := s.cond(id)
	c.waiters = append(c.waiters, condWaiter{requester: requester, mutexID: mutexID, reqTime: tReq, grant: grant})
}

// CondSignal wakes exactly one waiter (FIFO), moving it from the cond
// queue onto the mutex queue for re-acquisition.
func (s *SyncServer) CondSignal(id ID, tReq simtime.SimTime) {
	c := s.cond(id)
	if len(c.waiters) == 0 {
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	s.MutexLock(w.mutexID, w.requester, tReq, w.grant)
}

// CondBroadcast wakes every waiter, moving each onto its mutex queue in
// FIFO order.
func (s *SyncServer) CondBroadcast(id ID, tReq simtime.SimTime) {
	c := s.cond(id)
	waiters := c.waiters
	c.waiters = nil
	for _, w := range waiters {
		s.MutexLock(w.mutexID, w.requester, tReq, w.grant)
	}
}

type barrierArrival struct {
	requester ids.CoreID
	reqTime   simtime.SimTime
	grant     GrantFunc
}

type barrierState struct {
	count    int
	arrivals []barrierArrival
}

func (s *SyncServer) barrier(id ID, count int) *barrierState {
	b, ok := s.barriers[id]
	if !ok {
		b = &barrierState{count: count}
		s.barriers[id] = b
	}
	return b
}

// BarrierWait accumulates arrivals at barrier id (configured for count
// participants); once the count-th arrival lands, every waiter is
// released at max(t_req) over all arrivals, and the barrier resets for
// reuse.
func (s *SyncServer) BarrierWait(id ID, count int, requester ids.CoreID, tReq simtime.SimTime, grant GrantFunc) {
	b := s.barrier(id, count)
	b.arrivals = append(b.arrivals, barrierArrival{requester: requester, reqTime: tReq, grant: grant})

	if len(b.arrivals) < b.count {
		return
	}

	release := b.arrivals[0].reqTime
	for _, a := range b.arrivals[1:] {
		release = simtime.Max(release, a.reqTime)
	}

	arrivals := b.arrivals
	b.arrivals = nil
	for _, a := range arrivals {
		a.grant(release)
	}
}
