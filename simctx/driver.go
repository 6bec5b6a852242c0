package simctx

import (
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/carbonsim/coherence"
	"github.com/sarchlab/carbonsim/dyninst"
	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/mcp"
	"github.com/sarchlab/carbonsim/netmsg"
	"github.com/sarchlab/carbonsim/simtime"
)

// TraceOpKind tags a TraceOp as a plain instruction, a memory access
// that must be costed through the memory subsystem, or a synchronization
// operation that round-trips through the MCP.
type TraceOpKind int

const (
	OpInstruction TraceOpKind = iota
	OpMemory
	OpSync
)

// SyncKind tags which sync primitive an OpSync trace op exercises.
type SyncKind int

const (
	SyncLock SyncKind = iota
	SyncUnlock
	SyncBarrier
)

// TraceOp is one element of the dynamic instruction/memory-access stream
// an instrumented binary hands the simulator. The binary instrumentation
// front end itself lives outside this module; TraceOp is the seam it
// plugs into.
type TraceOp struct {
	Kind    TraceOpKind
	Instr   dyninst.Instruction
	Address uint64
	Size    uint64
	Write   bool

	Sync         SyncKind
	SyncID       uint64
	BarrierCount int
}

// InstructionOp builds a TraceOp that coreperf executes directly, with no
// memory-subsystem involvement (a Fixed, Static, Branch, or Spawn op).
func InstructionOp(instr dyninst.Instruction) TraceOp {
	return TraceOp{Kind: OpInstruction, Instr: instr}
}

// MemoryOp builds a TraceOp representing a single load or store of
// sizeBytes at address, to be costed through coherence/NoC/DRAM before
// coreperf retires it.
func MemoryOp(address, sizeBytes uint64, write bool) TraceOp {
	return TraceOp{Kind: OpMemory, Address: address, Size: sizeBytes, Write: write}
}

// LockOp builds a TraceOp that acquires mutex id through the MCP; the
// grant's release time is folded back in as a SYNC (Fixed) instruction.
func LockOp(id uint64) TraceOp {
	return TraceOp{Kind: OpSync, Sync: SyncLock, SyncID: id}
}

// UnlockOp builds a TraceOp that releases mutex id through the MCP.
func UnlockOp(id uint64) TraceOp {
	return TraceOp{Kind: OpSync, Sync: SyncUnlock, SyncID: id}
}

// BarrierOp builds a TraceOp that joins barrier id configured for count
// participants.
func BarrierOp(id uint64, count int) TraceOp {
	return TraceOp{Kind: OpSync, Sync: SyncBarrier, SyncID: id, BarrierCount: count}
}

// CoreDriver walks one application core's TraceOp stream against its
// coreperf.Model: memory ops are costed through Context.MemoryAccess
// (coherence -> NoC -> DRAM) and folded in as dyn-info, sync ops
// round-trip through the MCP and fold in as SYNC (Fixed) instructions,
// and every memory op is also issued as a real message over the akita
// memory network so the engine and the per-core DRAM link/controller it
// is plugged into genuinely process traffic.
//
// Stepping is driven by Context.RunTrace's merge loop rather than the
// akita tick clock: the loop always advances the core with the smallest
// simulated elapsed time, which keeps cross-core MCP requests in
// arrival order without a global simulation clock.
type CoreDriver struct {
	*sim.TickingComponent

	ctx  *Context
	core ids.CoreID
	ctrl memDst

	memPort sim.Port

	trace []TraceOp
	pc    int

	// set while a sync request is enqueued on the MCP and no grant has
	// come back yet; cleared when some other core's operation releases us.
	waiting     bool
	syncReqTime simtime.SimTime

	lastUtilReport simtime.SimTime
}

// memDst is the subset of idealmemcontroller.Comp CoreDriver needs: the
// port it addresses memory requests to.
type memDst interface {
	GetPortByName(string) sim.Port
}

func newCoreDriver(ctx *Context, core ids.CoreID, ctrl memDst, name string) *CoreDriver {
	d := &CoreDriver{ctx: ctx, core: core, ctrl: ctrl}
	d.TickingComponent = sim.NewTickingComponent(name, ctx.Engine, 1*sim.GHz, d)
	d.memPort = sim.NewLimitNumMsgPort(d, 16, name+".Mem")
	d.AddPort("Mem", d.memPort)
	return d
}

// PushTrace installs the instruction/memory-access stream this driver
// walks once the engine runs.
func (d *CoreDriver) PushTrace(ops []TraceOp) {
	d.trace = append(d.trace, ops...)
}

// Done reports whether the driver has retired its whole trace.
func (d *CoreDriver) Done() bool { return d.pc >= len(d.trace) }

// runnable reports whether step can make progress right now: there is
// trace left, and if we are blocked on a sync grant, the grant has been
// delivered.
func (d *CoreDriver) runnable() bool {
	if d.Done() {
		return false
	}
	if d.waiting {
		return d.ctx.hasGrant(d.core)
	}
	return true
}

// step executes the driver's next trace op (or retires a granted sync
// wait), advancing the core's coreperf elapsed time.
func (d *CoreDriver) step() {
	model := d.ctx.Cores[d.core]

	if d.waiting {
		release, _ := d.ctx.takeGrant(d.core)
		model.Execute(dyninst.Fixed(release.Sub(d.syncReqTime)))
		d.waiting = false
		d.pc++
		return
	}

	op := d.trace[d.pc]
	switch op.Kind {
	case OpMemory:
		d.stepMemory(op)
		d.pc++

	case OpInstruction:
		model.Execute(op.Instr)
		d.pc++

	case OpSync:
		d.stepSync(op)
	}

	d.maybeReportUtilization()
}

// stepMemory costs a load/store through coherence, the NoC, and DRAM,
// folds the latency in as memory dyn-info retired by a String(1), and
// issues the access onto the real memory network.
func (d *CoreDriver) stepMemory(op TraceOp) {
	model := d.ctx.Cores[d.core]

	kind := coherence.Read
	if op.Write {
		kind = coherence.Write
	}

	if d.ctx.skewPerAccess {
		d.reportClockSkew(model.Elapsed())
	}

	latency := d.ctx.MemoryAccess(d.core, op.Address, op.Size, kind, model.Elapsed(), nil)

	info := dyninst.MemoryRead(latency)
	if op.Write {
		info = dyninst.MemoryWrite(latency)
	}
	model.PushInfo(info)
	model.Execute(dyninst.String(1))

	d.issueWireTraffic(op)
}

// stepSync round-trips one sync operation through the MCP over the
// modeled NoC. Lock and barrier ops stall until granted: a grant carried
// in our own response retires immediately, otherwise the driver parks and
// RunTrace's merge loop resumes it when another core's operation releases
// the grant. The retired cost is release - request time, the SYNC stall.
func (d *CoreDriver) stepSync(op TraceOp) {
	model := d.ctx.Cores[d.core]
	tReq := model.Elapsed()

	if d.ctx.skewScheme == mcp.ClockSkewBarrier {
		d.reportClockSkew(tReq)
	}

	var payload []byte
	switch op.Sync {
	case SyncLock:
		payload = mcp.EncodeMutexLock(mcp.ID(op.SyncID), tReq)
	case SyncUnlock:
		payload = mcp.EncodeMutexUnlock(mcp.ID(op.SyncID), tReq)
	case SyncBarrier:
		payload = mcp.EncodeBarrierWait(mcp.ID(op.SyncID), op.BarrierCount, tReq)
	}

	if err := d.ctx.mcpCall(d.core, netmsg.MCPSync, payload, tReq); err != nil {
		panic(err)
	}

	if op.Sync == SyncUnlock {
		d.pc++
		return
	}

	if release, ok := d.ctx.takeGrant(d.core); ok {
		model.Execute(dyninst.Fixed(release.Sub(tReq)))
		d.pc++
		return
	}
	d.waiting = true
	d.syncReqTime = tReq
}

// reportClockSkew sends this core's current simulated time to the MCP's
// clock-skew server. The merge loop already advances cores in elapsed-time
// order, so the returned delay is informational here; a real thread-per-core
// front end would sleep it out.
func (d *CoreDriver) reportClockSkew(at simtime.SimTime) {
	_ = d.ctx.mcpCall(d.core, netmsg.MCPClockSkew, mcp.EncodeClockSkewReport(at), at)
}

// maybeReportUtilization emits this node's UtilizationUpdate once per
// NoC update interval of simulated time and applies the returned
// GlobalUtilization broadcast, closing the gossip loop.
func (d *CoreDriver) maybeReportUtilization() {
	interval := d.ctx.NoC.UpdateInterval()
	if interval <= simtime.Zero {
		return
	}
	now := d.ctx.Cores[d.core].Elapsed()
	if now.Sub(d.lastUtilReport) < interval {
		return
	}

	local := d.ctx.NoC.LocalUtilization(d.core, now)
	if err := d.ctx.utilizationCall(d.core, local, now); err != nil {
		panic(err)
	}
	d.ctx.NoC.ResetUtilizationWindow(d.core, now)
	d.lastUtilReport = now
}

// Tick drains memory-network responses delivered to this driver. The
// latencies folded into coreperf come from the analytical MemoryAccess
// path in stepMemory, not from the akita delivery event: the wire traffic
// keeps the connected components genuinely driven without making them the
// timing source of truth, which stays the analytical models.
func (d *CoreDriver) Tick(_ sim.VTimeInSec) bool {
	return d.memPort.RetrieveIncoming() != nil
}

// issueWireTraffic sends a fire-and-forget request for op across the real
// memory network to this core's DRAM controller. Both reads and writes
// are represented on the wire as read requests; the coherence read/write
// distinction that matters for cost is handled in stepMemory.
func (d *CoreDriver) issueWireTraffic(op TraceOp) {
	req := mem.ReadReqBuilder{}.
		WithAddress(op.Address).
		WithByteSize(op.Size).
		WithSrc(d.memPort).
		WithDst(d.ctrl.GetPortByName("Top")).
		WithPID(0).
		WithSendTime(d.ctx.Engine.CurrentTime()).
		Build()

	_ = d.memPort.Send(req)
}
