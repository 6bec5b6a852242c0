// Package shmemperf records the timestamped phase breakdown of a shared
// memory access (queueing, bus transfer, device access, ...).
package shmemperf

import "github.com/sarchlab/carbonsim/simtime"

// Phase tags one stage of a memory access's latency breakdown.
type Phase int

const (
	Unknown Phase = iota
	DRAMQueue
	DRAMBus
	DRAMDevice
)

func (p Phase) String() string {
	switch p {
	case DRAMQueue:
		return "dram-queue"
	case DRAMBus:
		return "dram-bus"
	case DRAMDevice:
		return "dram-device"
	default:
		return "unknown"
	}
}

// entry is one (timestamp, phase) pair in the breakdown.
type entry struct {
	at    simtime.SimTime
	phase Phase
}

// Breakdown is an ordered, monotone non-decreasing sequence of
// (timestamp, phase) pairs. UpdateTime only records a new entry if its
// timestamp strictly exceeds the last recorded timestamp, silently
// dropping out-of-order updates rather than erroring (a request whose
// queue delay collapses to zero produces several updates at the same
// instant, and only the first should stick).
type Breakdown struct {
	entries []entry
}

// UpdateTime records at under phase if at is strictly after the last
// recorded timestamp (or the breakdown is empty).
func (b *Breakdown) UpdateTime(at simtime.SimTime, phase Phase) {
	if len(b.entries) > 0 && at <= b.entries[len(b.entries)-1].at {
		return
	}
	b.entries = append(b.entries, entry{at: at, phase: phase})
}

// Entries returns the recorded (timestamp, phase) pairs in order.
func (b *Breakdown) Entries() []struct {
	At    simtime.SimTime
	Phase Phase
} {
	out := make([]struct {
		At    simtime.SimTime
		Phase Phase
	}, len(b.entries))
	for i, e := range b.entries {
		out[i] = struct {
			At    simtime.SimTime
			Phase Phase
		}{At: e.at, Phase: e.phase}
	}
	return out
}

// Last returns the most recently recorded timestamp, or Zero if empty.
func (b *Breakdown) Last() simtime.SimTime {
	if len(b.entries) == 0 {
		return simtime.Zero
	}
	return b.entries[len(b.entries)-1].at
}

// Reset clears the breakdown so it can be reused for the next access.
func (b *Breakdown) Reset() {
	b.entries = b.entries[:0]
}
