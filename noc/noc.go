// Package noc implements the analytical network-on-chip model: a
// closed-form per-packet latency over a k-ary n-cube with a contention
// term driven by an eventually-consistent global-utilization estimate.
package noc

import (
	"math"
	"sync"

	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/netmsg"
	"github.com/sarchlab/carbonsim/simtime"
)

// Config holds the network/analytical/* parameters.
type Config struct {
	TotalCores int
	Dimensions int // n

	Tw2            float64 // per-hop wire cycles
	S              float64 // switching cycles
	WidthBits      int     // W, channel width in bits
	UpdateInterval simtime.SimTime
	ProcessingCost simtime.SimTime // zero for memory networks, nonzero for user networks
}

// Model routes packets across the analytical NoC and tracks the single
// per-node global-utilization estimate each node needs to compute its
// contention term.
type Model struct {
	cfg Config
	k   int

	mu           sync.Mutex
	utilization  map[ids.CoreID]float64 // last GlobalUtilization broadcast received, per node
	flitsSent    map[ids.CoreID]uint64
	lastUpdateAt map[ids.CoreID]simtime.SimTime
}

// New constructs an analytical NoC model over cfg.TotalCores cores arranged
// in a cfg.Dimensions-dimensional k-ary cube.
func New(cfg Config) *Model {
	return &Model{
		cfg:          cfg,
		k:            ids.RadixK(cfg.TotalCores, cfg.Dimensions),
		utilization:  map[ids.CoreID]float64{},
		flitsSent:    map[ids.CoreID]uint64{},
		lastUpdateAt: map[ids.CoreID]simtime.SimTime{},
	}
}

// UpdateInterval returns the configured utilization-gossip window: how
// much simulated time elapses on a node between UtilizationUpdate reports.
func (m *Model) UpdateInterval() simtime.SimTime {
	return m.cfg.UpdateInterval
}

// Route computes the single Hop a packet takes to its destination. Magic
// routing: every packet takes exactly one modeled hop whose final and next
// destination both equal the receiver; the computed latency approximates
// the full path.
func (m *Model) Route(p netmsg.Packet, src ids.CoreID) netmsg.Hop {
	sentAt := simtime.FS(p.TimeFS)

	if src == p.Receiver {
		return netmsg.Hop{FinalDest: p.Receiver, NextDest: p.Receiver, ArrivalFS: int64(sentAt)}
	}

	latency, flitHops := m.latency(src, p.Receiver, 8*p.Length)
	m.recordFlits(src, flitHops)

	return netmsg.Hop{
		FinalDest: p.Receiver,
		NextDest:  p.Receiver,
		ArrivalFS: int64(sentAt.Add(latency).Add(m.cfg.ProcessingCost)),
	}
}

// latency computes the closed-form k-ary n-cube transit time. The second
// return value is the packet's usage of the mesh, B flits across every
// hop, which feeds the local utilization counter.
func (m *Model) latency(src, dst ids.CoreID, packetBits uint64) (simtime.SimTime, uint64) {
	n := m.cfg.Dimensions
	k := m.k
	kd := float64(k) / 2

	timePerHop := m.cfg.S + math.Pow(float64(k), float64(n)/2-1)

	B := float64(0)
	if m.cfg.WidthBits > 0 {
		B = math.Ceil(float64(packetBits) / float64(m.cfg.WidthBits))
	}

	srcCoords := ids.Coordinates(src, k, n)
	dstCoords := ids.Coordinates(dst, k, n)

	distance := 0
	for i := 0; i < n; i++ {
		d := (dstCoords[i] - srcCoords[i]) % k
		if d < 0 {
			d += k
		}
		distance += d
	}

	p := m.currentUtilization(src)

	w := 0.0
	if p > 0 && p < 1 && kd > 0 {
		w = (p * B / (1 - p)) * ((kd - 1) / (kd * kd)) * (1 + 1/float64(n))
	}
	if w < 0 {
		w = 0
	}

	tc := m.cfg.Tw2 * timePerHop * (float64(distance)*(1+w) + B)
	flitHops := uint64(B * (float64(distance) + B))
	return simtime.NS(int64(math.Ceil(tc))), flitHops
}

func (m *Model) currentUtilization(node ids.CoreID) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.utilization[node]
}

// recordFlits tallies flits sent by node toward its next UpdateInterval
// report; it does not itself emit the UtilizationUpdate message, which is
// the caller's job (simctx's core driver checks after each trace step
// whether UpdateInterval has elapsed and reports through the MCP).
func (m *Model) recordFlits(node ids.CoreID, flits uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flitsSent[node] += flits
}

// LocalUtilization returns flits_sent / elapsed for node since the last
// reset, the value the owning component packages into a UtilizationUpdate
// once per UpdateInterval.
func (m *Model) LocalUtilization(node ids.CoreID, now simtime.SimTime) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.lastUpdateAt[node]
	if !ok {
		last = simtime.Zero
	}
	elapsed := now.Sub(last)
	if elapsed <= simtime.Zero {
		return 0
	}
	return float64(m.flitsSent[node]) / float64(elapsed)
}

// ResetUtilizationWindow zeroes node's flit counter and advances its
// last-update marker to now, starting the next UpdateInterval window.
func (m *Model) ResetUtilizationWindow(node ids.CoreID, now simtime.SimTime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flitsSent[node] = 0
	m.lastUpdateAt[node] = now
}

// ApplyGlobalUtilization updates node's view of the global utilization
// estimate p, as delivered by the MCP's GlobalUtilization broadcast.
// Invariant: 0 <= p < 1. An out-of-range value is a programmer error in
// the MCP aggregator, not a runtime condition this model should paper
// over.
func (m *Model) ApplyGlobalUtilization(node ids.CoreID, p float64) {
	if p < 0 || p >= 1 {
		panic("noc: global utilization out of [0,1) range")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.utilization[node] = p
}
