// Package dyninst defines the dynamic instruction stream the per-core
// performance model consumes, and the side-band info records the
// instrumentation front-end pushes alongside it.
package dyninst

import "github.com/sarchlab/carbonsim/simtime"

// Kind tags which variant an Instruction is.
type Kind int

const (
	KindFixed Kind = iota
	KindStatic
	KindString
	KindBranch
	KindSpawn
)

// StaticKind names a statically-costed instruction category; the cost is
// configured cycles for this kind, scaled by the core's current Period.
type StaticKind string

// Instruction is a tagged variant of the dynamic instructions the
// per-core performance model costs and retires.
type Instruction struct {
	kind Kind

	// KindFixed
	fixedCost simtime.SimTime

	// KindStatic
	staticKind StaticKind

	// KindString
	stringNumOps uint32

	// KindBranch
	branchAddr, branchTarget uint64
	branchTaken              bool

	// KindSpawn
	spawnTime simtime.SimTime
}

// Kind returns the instruction's tag.
func (i Instruction) Kind() Kind { return i.kind }

// Fixed builds a Fixed(cost) instruction, e.g. a SYNC stall whose cost is
// the MCP round-trip latency computed ahead of time.
func Fixed(cost simtime.SimTime) Instruction {
	return Instruction{kind: KindFixed, fixedCost: cost}
}

// FixedCost returns the fixed cost of a KindFixed instruction.
func (i Instruction) FixedCost() simtime.SimTime { return i.fixedCost }

// Static builds a Static(kind) instruction whose cost is
// per-kind-configured-cycles * core period.
func Static(kind StaticKind) Instruction {
	return Instruction{kind: KindStatic, staticKind: kind}
}

// StaticKind returns the static instruction's category.
func (i Instruction) StaticKind() StaticKind { return i.staticKind }

// String builds a String(numOps) instruction that will pop numOps
// MemoryInfo records off the dyn-info queue and sum their latencies.
func String(numOps uint32) Instruction {
	return Instruction{kind: KindString, stringNumOps: numOps}
}

// StringNumOps returns the number of memory ops a String instruction
// expects to consume from the dyn-info queue.
func (i Instruction) StringNumOps() uint32 { return i.stringNumOps }

// Branch builds a Branch instruction: 1 cycle if predicted correctly, the
// configured mispredict penalty otherwise.
func Branch(addr, target uint64, taken bool) Instruction {
	return Instruction{kind: KindBranch, branchAddr: addr, branchTarget: target, branchTaken: taken}
}

// BranchFields returns the branch instruction's address, target, and
// taken/not-taken outcome.
func (i Instruction) BranchFields() (addr, target uint64, taken bool) {
	return i.branchAddr, i.branchTarget, i.branchTaken
}

// Spawn builds a marker-only Spawn instruction that sets elapsed time to
// max(elapsed, time) without being executed or costed directly.
func Spawn(time simtime.SimTime) Instruction {
	return Instruction{kind: KindSpawn, spawnTime: time}
}

// SpawnTime returns the marker time of a Spawn instruction.
func (i Instruction) SpawnTime() simtime.SimTime { return i.spawnTime }

// InfoKind tags a DynamicInstructionInfo's variant.
type InfoKind int

const (
	InfoMemoryRead InfoKind = iota
	InfoMemoryWrite
	InfoBranch
	InfoStringMarker
)

// Info is a tagged side-band record produced by the instrumentation
// stream, carrying the fields the corresponding Instruction will consume
// when it is costed. The per-core dyn-info queue is strictly FIFO.
type Info struct {
	kind InfoKind

	// InfoMemoryRead / InfoMemoryWrite
	memoryLatency simtime.SimTime

	// InfoBranch
	branchTarget uint64
	branchTaken  bool

	// InfoStringMarker
	stringNumOps uint32
}

// Kind returns the info record's tag.
func (i Info) Kind() InfoKind { return i.kind }

// MemoryRead/MemoryWrite build a memory-access info record carrying the
// latency the String instruction (or a direct memory op) will add up.
func MemoryRead(latency simtime.SimTime) Info {
	return Info{kind: InfoMemoryRead, memoryLatency: latency}
}

func MemoryWrite(latency simtime.SimTime) Info {
	return Info{kind: InfoMemoryWrite, memoryLatency: latency}
}

// MemoryLatency returns the latency carried by a memory info record.
func (i Info) MemoryLatency() simtime.SimTime { return i.memoryLatency }

// BranchInfo builds a branch outcome info record.
func BranchInfo(target uint64, taken bool) Info {
	return Info{kind: InfoBranch, branchTarget: target, branchTaken: taken}
}

// BranchFields returns the branch info record's target and outcome.
func (i Info) BranchFields() (target uint64, taken bool) {
	return i.branchTarget, i.branchTaken
}

// StringMarker builds the terminal marker of a run of memory-read info
// records belonging to a single String instruction.
func StringMarker(numOps uint32) Info {
	return Info{kind: InfoStringMarker, stringNumOps: numOps}
}

// StringNumOps returns the op count carried by a string marker record.
func (i Info) StringNumOps() uint32 { return i.stringNumOps }
