package mcp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/netmsg"
	"github.com/sarchlab/carbonsim/simtime"
)

// SyncOp tags which sync-server operation an MCPSync request carries,
// the second word of the wire header after netmsg's kind discriminant
// ({msg_type: u32, op: u32}).
type SyncOp uint32

const (
	OpMutexLock SyncOp = iota
	OpMutexUnlock
	OpCondWait
	OpCondSignal
	OpCondBroadcast
	OpBarrierWait
	OpFutexWait
	OpFutexCancelWait
	OpFutexWake
	OpFutexRequeue
	OpFutexWakeOp
)

// SyncGrant is one release notification carried back in an MCPSync
// response: the granted core and its release timestamp. A response may
// carry grants for cores other than the requester — an unlock's response
// is what reports the waiter it woke. Grant responses are formed and then
// released, decoupling wakeups from the MCP's internal serialization.
type SyncGrant struct {
	Core    ids.CoreID
	Release simtime.SimTime
}

// SyncReply is the decoded payload of an MCPSync response: the op's
// immediate integer results (woken counts for futex wakes, 1/0 for a
// cancel, zero otherwise) plus every grant the operation released.
type SyncReply struct {
	Result  uint32
	Result2 uint32
	Grants  []SyncGrant
}

// wireReader is a little-endian cursor over a request payload. Reads past
// the end set err and return zero rather than panicking, so a malformed
// payload surfaces as one error at the end of decoding.
type wireReader struct {
	buf []byte
	err error
}

func (r *wireReader) u32() uint32 {
	if r.err != nil || len(r.buf) < 4 {
		r.err = fmt.Errorf("mcp: request payload too short")
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v
}

func (r *wireReader) u64() uint64 {
	if r.err != nil || len(r.buf) < 8 {
		r.err = fmt.Errorf("mcp: request payload too short")
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}

func (r *wireReader) time() simtime.SimTime {
	return simtime.FS(int64(r.u64()))
}

func putU32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }
func putU64(b []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(b, v) }

func syncHeader(op SyncOp, tReq simtime.SimTime) []byte {
	b := putU32(nil, uint32(op))
	return putU64(b, uint64(tReq.FS()))
}

// EncodeMutexLock builds the MCPSync payload for a MutexLock request.
func EncodeMutexLock(id ID, tReq simtime.SimTime) []byte {
	return putU64(syncHeader(OpMutexLock, tReq), uint64(id))
}

// EncodeMutexUnlock builds the MCPSync payload for a MutexUnlock request.
func EncodeMutexUnlock(id ID, tReq simtime.SimTime) []byte {
	return putU64(syncHeader(OpMutexUnlock, tReq), uint64(id))
}

// EncodeCondWait builds the MCPSync payload for a CondWait request.
func EncodeCondWait(cond, mutex ID, tReq simtime.SimTime) []byte {
	b := putU64(syncHeader(OpCondWait, tReq), uint64(cond))
	return putU64(b, uint64(mutex))
}

// EncodeCondSignal builds the MCPSync payload for a CondSignal request.
func EncodeCondSignal(id ID, tReq simtime.SimTime) []byte {
	return putU64(syncHeader(OpCondSignal, tReq), uint64(id))
}

// EncodeCondBroadcast builds the MCPSync payload for a CondBroadcast
// request.
func EncodeCondBroadcast(id ID, tReq simtime.SimTime) []byte {
	return putU64(syncHeader(OpCondBroadcast, tReq), uint64(id))
}

// EncodeBarrierWait builds the MCPSync payload for a BarrierWait request
// against a barrier configured for count participants.
func EncodeBarrierWait(id ID, count int, tReq simtime.SimTime) []byte {
	b := putU64(syncHeader(OpBarrierWait, tReq), uint64(id))
	return putU32(b, uint32(count))
}

// EncodeFutexWait builds the MCPSync payload for a FUTEX_WAIT or
// FUTEX_WAIT_BITSET request (bitset 0 means match-any, i.e. plain WAIT).
func EncodeFutexWait(uaddr uint64, bitset uint32, tReq simtime.SimTime) []byte {
	b := putU64(syncHeader(OpFutexWait, tReq), uaddr)
	return putU32(b, bitset)
}

// EncodeFutexCancelWait builds the MCPSync payload for a timed-out
// futex wait's cancellation.
func EncodeFutexCancelWait(uaddr uint64, tReq simtime.SimTime) []byte {
	return putU64(syncHeader(OpFutexCancelWait, tReq), uaddr)
}

// EncodeFutexWake builds the MCPSync payload for a FUTEX_WAKE or
// FUTEX_WAKE_BITSET request.
func EncodeFutexWake(uaddr uint64, count int, mask uint32, tReq simtime.SimTime) []byte {
	b := putU64(syncHeader(OpFutexWake, tReq), uaddr)
	b = putU32(b, uint32(count))
	return putU32(b, mask)
}

// EncodeFutexRequeue builds the MCPSync payload for a FUTEX_REQUEUE or
// FUTEX_CMP_REQUEUE request (the CMP variant's value check happens
// upstream; by this point the two are the same operation).
func EncodeFutexRequeue(uaddr, uaddr2 uint64, nWake, nRequeue int, tReq simtime.SimTime) []byte {
	b := putU64(syncHeader(OpFutexRequeue, tReq), uaddr)
	b = putU64(b, uaddr2)
	b = putU32(b, uint32(nWake))
	return putU32(b, uint32(nRequeue))
}

// EncodeFutexWakeOp builds the MCPSync payload for a FUTEX_WAKE_OP
// request, with the op's comparison against *uaddr2 already evaluated
// upstream into cmpResult.
func EncodeFutexWakeOp(uaddr, uaddr2 uint64, nWake, nWake2 int, cmpResult bool, tReq simtime.SimTime) []byte {
	b := putU64(syncHeader(OpFutexWakeOp, tReq), uaddr)
	b = putU64(b, uaddr2)
	b = putU32(b, uint32(nWake))
	b = putU32(b, uint32(nWake2))
	cmp := uint32(0)
	if cmpResult {
		cmp = 1
	}
	return putU32(b, cmp)
}

// DecodeSyncReply parses an MCPSync response payload.
func DecodeSyncReply(payload []byte) (SyncReply, error) {
	r := &wireReader{buf: payload}
	reply := SyncReply{
		Result:  r.u32(),
		Result2: r.u32(),
	}
	n := r.u32()
	for i := uint32(0); i < n && r.err == nil; i++ {
		core := ids.CoreID(int32(r.u32()))
		release := r.time()
		reply.Grants = append(reply.Grants, SyncGrant{Core: core, Release: release})
	}
	return reply, r.err
}

func encodeSyncReply(result, result2 uint32, grants []syncGrant) []byte {
	b := putU32(nil, result)
	b = putU32(b, result2)
	b = putU32(b, uint32(len(grants)))
	for _, g := range grants {
		b = putU32(b, uint32(g.requester))
		b = putU64(b, uint64(g.release.FS()))
	}
	return b
}

// sync request payload: {op: u32, t_req: u64 FS}{op-specific fields},
// the requester riding in the envelope. The response carries the op's
// integer results and the grants the operation fired, including grants
// that release waiters enqueued by earlier requests.
func (s *Server) dispatchSync(req netmsg.MCPRequest) (netmsg.MCPResponse, error) {
	r := &wireReader{buf: req.Payload}
	op := SyncOp(r.u32())
	tReq := r.time()

	var result, result2 uint32
	switch op {
	case OpMutexLock:
		s.Sync.MutexLock(ID(r.u64()), req.Requester, tReq, s.grantFor(req.Requester))
	case OpMutexUnlock:
		s.Sync.MutexUnlock(ID(r.u64()), req.Requester, tReq)
	case OpCondWait:
		cond := ID(r.u64())
		mutex := ID(r.u64())
		s.Sync.CondWait(cond, mutex, req.Requester, tReq, s.grantFor(req.Requester))
	case OpCondSignal:
		s.Sync.CondSignal(ID(r.u64()), tReq)
	case OpCondBroadcast:
		s.Sync.CondBroadcast(ID(r.u64()), tReq)
	case OpBarrierWait:
		id := ID(r.u64())
		count := int(r.u32())
		s.Sync.BarrierWait(id, count, req.Requester, tReq, s.grantFor(req.Requester))
	case OpFutexWait:
		uaddr := r.u64()
		bitset := r.u32()
		s.Sync.FutexWaitReq(uaddr, req.Requester, tReq, bitset, s.grantFor(req.Requester))
	case OpFutexCancelWait:
		if s.Sync.FutexCancelWait(r.u64(), req.Requester) {
			result = 1
		}
	case OpFutexWake:
		uaddr := r.u64()
		count := int(r.u32())
		mask := r.u32()
		result = uint32(s.Sync.FutexWake(uaddr, count, mask, tReq))
	case OpFutexRequeue:
		uaddr := r.u64()
		uaddr2 := r.u64()
		nWake := int(r.u32())
		nRequeue := int(r.u32())
		woken, requeued := s.Sync.FutexRequeue(uaddr, uaddr2, nWake, nRequeue, tReq)
		result, result2 = uint32(woken), uint32(requeued)
	case OpFutexWakeOp:
		uaddr := r.u64()
		uaddr2 := r.u64()
		nWake := int(r.u32())
		nWake2 := int(r.u32())
		cmp := r.u32() != 0
		woken, woken2 := s.Sync.FutexWakeOp(uaddr, uaddr2, nWake, nWake2, cmp, tReq)
		result, result2 = uint32(woken), uint32(woken2)
	default:
		s.drainGrants()
		return netmsg.MCPResponse{}, fmt.Errorf("mcp: unknown sync op %d", op)
	}

	grants := s.drainGrants()
	if r.err != nil {
		return netmsg.MCPResponse{}, r.err
	}
	return netmsg.MCPResponse{Ok: true, Payload: encodeSyncReply(result, result2, grants)}, nil
}

// MagicOp tags an operation on the magic interface.
type MagicOp uint32

const (
	MagicROIBegin MagicOp = iota
	MagicROIEnd
	MagicSetMode
	MagicGetMode
	MagicSetMHz
	MagicGetMHz
)

// EncodeMagicROI builds the MCPMagic payload toggling the ROI.
func EncodeMagicROI(begin bool) []byte {
	op := MagicROIEnd
	if begin {
		op = MagicROIBegin
	}
	return putU32(nil, uint32(op))
}

// EncodeMagicSetMode builds the MCPMagic payload for a mode transition.
func EncodeMagicSetMode(mode InstrumentationMode) []byte {
	b := putU32(nil, uint32(MagicSetMode))
	return putU64(b, uint64(mode))
}

// EncodeMagicGetMode builds the MCPMagic payload querying the mode.
func EncodeMagicGetMode() []byte {
	return putU32(nil, uint32(MagicGetMode))
}

// EncodeMagicSetMHz builds the MCPMagic payload for the DVFS MHz-set call.
func EncodeMagicSetMHz(core int, mhz float64) []byte {
	b := putU32(nil, uint32(MagicSetMHz))
	b = putU32(b, uint32(core))
	return putU64(b, math.Float64bits(mhz))
}

// EncodeMagicGetMHz builds the MCPMagic payload for the MHz-get call.
func EncodeMagicGetMHz(core int) []byte {
	b := putU32(nil, uint32(MagicGetMHz))
	return putU32(b, uint32(core))
}

// DecodeMagicReply parses an MCPMagic response payload into its raw
// 64-bit result (the mode for GetMode, Float64bits of the frequency for
// GetMHz, zero for the set/toggle ops).
func DecodeMagicReply(payload []byte) (uint64, error) {
	r := &wireReader{buf: payload}
	v := r.u64()
	return v, r.err
}

// magic request payload: {op: u32}{op-specific fields}. The response is a
// single u64 result.
func (s *Server) dispatchMagic(req netmsg.MCPRequest) (netmsg.MCPResponse, error) {
	r := &wireReader{buf: req.Payload}
	op := MagicOp(r.u32())

	var result uint64
	switch op {
	case MagicROIBegin:
		s.Magic.SetROI(true)
	case MagicROIEnd:
		s.Magic.SetROI(false)
	case MagicSetMode:
		s.Magic.SetMode(InstrumentationMode(r.u64()))
	case MagicGetMode:
		result = uint64(s.Magic.Mode())
	case MagicSetMHz:
		core := int(r.u32())
		mhz := math.Float64frombits(r.u64())
		s.Magic.SetMHz(core, mhz)
	case MagicGetMHz:
		result = math.Float64bits(s.Magic.MHz(int(r.u32())))
	default:
		return netmsg.MCPResponse{}, fmt.Errorf("mcp: unknown magic op %d", op)
	}

	if r.err != nil {
		return netmsg.MCPResponse{}, r.err
	}
	return netmsg.MCPResponse{Ok: true, Payload: putU64(nil, result)}, nil
}

// EncodeClockSkewReport builds the MCPClockSkew payload reporting the
// requester's current simulated time.
func EncodeClockSkewReport(at simtime.SimTime) []byte {
	return putU64(nil, uint64(at.FS()))
}

// DecodeClockSkewReply parses an MCPClockSkew response payload into the
// delay the reporting core must wait out.
func DecodeClockSkewReply(payload []byte) (simtime.SimTime, error) {
	r := &wireReader{buf: payload}
	v := r.time()
	return v, r.err
}

// clock-skew request payload: {time: u64 FS}. The response carries the
// delay the fast core is ordered to wait.
func (s *Server) dispatchClockSkew(req netmsg.MCPRequest) (netmsg.MCPResponse, error) {
	r := &wireReader{buf: req.Payload}
	at := r.time()
	if r.err != nil {
		return netmsg.MCPResponse{}, r.err
	}

	delay := s.ClockSkew.Report(req.Requester, at)
	return netmsg.MCPResponse{Ok: true, Payload: putU64(nil, uint64(delay.FS()))}, nil
}
