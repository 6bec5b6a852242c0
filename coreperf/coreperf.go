// Package coreperf implements the per-core performance model: it consumes
// a stream of dynamic instructions, costs each against the dyn-info FIFO
// and the current branch predictor, and tracks elapsed simulated time.
package coreperf

import (
	"github.com/sarchlab/carbonsim/coreperf/branchpred"
	"github.com/sarchlab/carbonsim/dyninst"
	"github.com/sarchlab/carbonsim/simtime"
)

// StaticCosts maps a DynamicInstruction's Static kind to its configured
// cycle cost, scaled by the core's current Period at execution time.
type StaticCosts map[dyninst.StaticKind]uint64

// Model holds one core's dyn-info FIFO, its branch predictor (or none),
// and its running elapsed time.
type Model struct {
	period  simtime.Period
	elapsed simtime.SimTime
	dynInfo []dyninst.Info
	pending *dyninst.Instruction

	predictor               branchpred.Predictor
	staticCosts             StaticCosts
	mispredictPenaltyCycles uint64

	branchCorrect, branchIncorrect uint64
}

// Config configures a per-core performance model.
type Config struct {
	Period                  simtime.Period
	Predictor               branchpred.Predictor // nil for the "none" variant
	StaticCosts             StaticCosts
	MispredictPenaltyCycles uint64
}

// New constructs a per-core performance model starting at elapsed=0.
func New(cfg Config) *Model {
	return &Model{
		period:                  cfg.Period,
		predictor:               cfg.Predictor,
		staticCosts:             cfg.StaticCosts,
		mispredictPenaltyCycles: cfg.MispredictPenaltyCycles,
	}
}

// Elapsed returns the core's current simulated elapsed time.
func (m *Model) Elapsed() simtime.SimTime { return m.elapsed }

// SetPeriod swaps the core's frequency domain (the DVFS operation).
func (m *Model) SetPeriod(p simtime.Period) { m.period = p }

// BranchCounters returns the running correct/incorrect prediction counts.
func (m *Model) BranchCounters() (correct, incorrect uint64) {
	return m.branchCorrect, m.branchIncorrect
}

// PushInfo appends a dyn-info record to the FIFO and retries any parked
// instruction, which may now have enough records to retire.
func (m *Model) PushInfo(info dyninst.Info) {
	m.dynInfo = append(m.dynInfo, info)
	if m.pending != nil {
		pending := *m.pending
		if m.executeString(pending) {
			m.pending = nil
		}
	}
}

// Execute costs and retires instr, advancing elapsed time, unless instr is
// a String that needs more dyn-info records than are currently queued — in
// which case it is parked and Execute returns false. Callers must not call
// Execute again until the pending instruction retires (single in-flight
// instruction per core, matching the strictly-FIFO dyn-info consumer).
func (m *Model) Execute(instr dyninst.Instruction) bool {
	switch instr.Kind() {
	case dyninst.KindFixed:
		m.elapsed = m.elapsed.Add(instr.FixedCost())
		return true

	case dyninst.KindStatic:
		cycles := m.staticCosts[instr.StaticKind()]
		m.elapsed = m.elapsed.Add(m.period.Cycles(cycles))
		return true

	case dyninst.KindBranch:
		m.executeBranch(instr)
		return true

	case dyninst.KindSpawn:
		m.elapsed = simtime.Max(m.elapsed, instr.SpawnTime())
		return true

	case dyninst.KindString:
		return m.executeString(instr)
	}
	return true
}

func (m *Model) executeBranch(instr dyninst.Instruction) {
	addr, _, taken := instr.BranchFields()

	if m.predictor == nil {
		// no predictor configured: branches never incur a mispredict
		// penalty, matching the "none" variant's absence of prediction
		// state to be wrong about.
		m.elapsed = m.elapsed.Add(m.period.Cycles(1))
		return
	}

	predicted := m.predictor.Predict(addr)
	m.predictor.Update(addr, taken)

	if predicted == taken {
		m.branchCorrect++
		m.elapsed = m.elapsed.Add(m.period.Cycles(1))
		return
	}
	m.branchIncorrect++
	m.elapsed = m.elapsed.Add(m.period.Cycles(m.mispredictPenaltyCycles))
}

// executeString pops instr.StringNumOps() memory-info records off the
// dyn-info FIFO and sums their latencies, or parks instr if not enough
// have arrived yet.
func (m *Model) executeString(instr dyninst.Instruction) bool {
	numOps := instr.StringNumOps()
	if uint32(len(m.dynInfo)) < numOps {
		m.pending = &instr
		return false
	}

	var total simtime.SimTime
	for i := uint32(0); i < numOps; i++ {
		info := m.dynInfo[0]
		m.dynInfo = m.dynInfo[1:]
		switch info.Kind() {
		case dyninst.InfoMemoryRead, dyninst.InfoMemoryWrite:
			total = total.Add(info.MemoryLatency())
		}
	}
	m.elapsed = m.elapsed.Add(total)
	return true
}
