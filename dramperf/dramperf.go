// Package dramperf implements the timing-accurate DRAM controller model:
// a bandwidth term, an optional queueing-delay term, and a fixed access
// cost.
package dramperf

import (
	"fmt"

	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/queuemodel"
	"github.com/sarchlab/carbonsim/shmemperf"
	"github.com/sarchlab/carbonsim/simtime"
	"github.com/sarchlab/carbonsim/stats"
)

// AccessKind distinguishes reads from writes for the ReadWrite variant.
type AccessKind int

const (
	Read AccessKind = iota
	Write
)

// Model is the DRAM controller's timing contract: given when a request of
// size_bytes arrived, return the additional latency (queueing + transfer +
// device access) before the response is ready, and record a phase
// breakdown into perf.
//
// AccessLatency returns Zero when the model is disabled, or when requester
// is not an application core: non-application cores (the thread-spawner,
// the MCP itself) never contend for DRAM bandwidth.
type Model interface {
	AccessLatency(
		arrive simtime.SimTime,
		sizeBytes uint64,
		requester ids.CoreID,
		address uint64,
		kind AccessKind,
		perf *shmemperf.Breakdown,
	) simtime.SimTime

	Enable()
	Disable()
	TotalAccesses() uint64
}

// Bandwidth stores a bandwidth in bits per femtosecond, the native time
// base, so transfer times come out in whole SimTime units.
type Bandwidth struct {
	bitsPerFS float64
}

// NewBandwidthBytesPerNS builds a Bandwidth from bytes/ns, the unit
// perf_model/dram/per_controller_bandwidth is configured in.
func NewBandwidthBytesPerNS(bytesPerNS float64) Bandwidth {
	bitsPerNS := bytesPerNS * 8
	return Bandwidth{bitsPerFS: bitsPerNS / 1e6}
}

// RoundedLatency returns the time needed to transfer numBits at this
// bandwidth, rounded up to a whole SimTime unit (a femtosecond).
func (b Bandwidth) RoundedLatency(numBits uint64) simtime.SimTime {
	if b.bitsPerFS <= 0 {
		return simtime.Zero
	}
	fs := float64(numBits) / b.bitsPerFS
	return simtime.FS(int64(fs + 0.999999))
}

// ApplicationCoreGate reports whether a requester is eligible to incur
// DRAM cost; callers plug in their own topology-aware gate.
type ApplicationCoreGate func(ids.CoreID) bool

// base holds the fields common to every DRAM model variant.
type base struct {
	enabled         bool
	isAppCore       ApplicationCoreGate
	queue           queuemodel.Model
	numAccesses     uint64
	totalLatency    simtime.SimTime
	totalQueueDelay simtime.SimTime
}

func (b *base) Enable() { b.enabled = true }

func (b *base) Disable() { b.enabled = false }

func (b *base) TotalAccesses() uint64 { return b.numAccesses }

func (b *base) eligible(requester ids.CoreID) bool {
	if !b.enabled {
		return false
	}
	if b.isAppCore != nil && !b.isAppCore(requester) {
		return false
	}
	return true
}

func (b *base) queueDelay(arrive, service simtime.SimTime, requester ids.CoreID) simtime.SimTime {
	if b.queue == nil {
		return simtime.Zero
	}
	return b.queue.ComputeDelay(arrive, service, requester)
}

func (b *base) record(accessLatency, queueDelay simtime.SimTime) {
	b.numAccesses++
	b.totalLatency = b.totalLatency.Add(accessLatency)
	b.totalQueueDelay = b.totalQueueDelay.Add(queueDelay)
}

// recordBreakdown writes the access's four timestamps in order: arrive,
// arrive+queue (DRAMQueue), arrive+queue+processing (DRAMBus),
// arrive+queue+processing+access (DRAMDevice).
func recordBreakdown(perf *shmemperf.Breakdown, arrive, queue, processing, access simtime.SimTime) {
	if perf == nil {
		return
	}
	perf.UpdateTime(arrive, shmemperf.Unknown)
	perf.UpdateTime(arrive.Add(queue), shmemperf.DRAMQueue)
	perf.UpdateTime(arrive.Add(queue).Add(processing), shmemperf.DRAMBus)
	perf.UpdateTime(arrive.Add(queue).Add(processing).Add(access), shmemperf.DRAMDevice)
}

// Constant is the "constant" DRAM variant: a single fixed access cost
// regardless of read/write kind.
type Constant struct {
	base
	bandwidth  Bandwidth
	accessCost simtime.SimTime
	registry   *stats.Registry
	coreIndex  uint32

	hmc           *HMCTopology
	vaultAccesses map[int]uint64
}

// ConstantConfig configures a Constant DRAM model.
type ConstantConfig struct {
	PerControllerBandwidthBytesPerNS float64
	LatencyNS                        int64
	Queue                            queuemodel.Model
	IsApplicationCore                ApplicationCoreGate
	Registry                         *stats.Registry
	CoreIndex                        uint32
	HMC                              *HMCTopology // optional address decomposition add-on
}

// NewConstant builds a Constant DRAM model and registers its stats.
func NewConstant(cfg ConstantConfig) *Constant {
	c := &Constant{
		base: base{
			isAppCore: cfg.IsApplicationCore,
			queue:     cfg.Queue,
		},
		bandwidth:  NewBandwidthBytesPerNS(cfg.PerControllerBandwidthBytesPerNS),
		accessCost: simtime.NS(cfg.LatencyNS),
		registry:   cfg.Registry,
		coreIndex:  cfg.CoreIndex,
		hmc:        cfg.HMC,
	}
	if c.hmc != nil {
		c.vaultAccesses = map[int]uint64{}
	}
	if c.registry != nil {
		c.registry.RegisterGauge("dram", cfg.CoreIndex, "total-access-latency", func() float64 {
			return float64(c.totalLatency.NS())
		})
		c.registry.RegisterGauge("dram", cfg.CoreIndex, "total-queueing-delay", func() float64 {
			return float64(c.totalQueueDelay.NS())
		})
		if c.hmc != nil {
			c.registry.RegisterGauge("dram", cfg.CoreIndex, "vaults-touched", func() float64 {
				return float64(len(c.vaultAccesses))
			})
		}
	}
	return c
}

// VaultAccesses returns how many accesses landed in each HMC vault, or
// nil when no HMCTopology is configured.
func (c *Constant) VaultAccesses() map[int]uint64 { return c.vaultAccesses }

// AccessLatency implements Model.
func (c *Constant) AccessLatency(
	arrive simtime.SimTime,
	sizeBytes uint64,
	requester ids.CoreID,
	address uint64,
	kind AccessKind,
	perf *shmemperf.Breakdown,
) simtime.SimTime {
	if !c.eligible(requester) {
		return simtime.Zero
	}

	processing := c.bandwidth.RoundedLatency(8 * sizeBytes)
	queue := c.queueDelay(arrive, processing, requester)
	latency := queue.Add(processing).Add(c.accessCost)

	recordBreakdown(perf, arrive, queue, processing, c.accessCost)
	c.record(latency, queue)

	if c.hmc != nil {
		c.vaultAccesses[c.hmc.Vault(address)]++
	}

	return latency
}

// ReadWrite is the "readwrite" DRAM variant: distinct fixed access costs
// for reads versus writes, dispatched by AccessKind.
type ReadWrite struct {
	base
	bandwidth       Bandwidth
	readAccessCost  simtime.SimTime
	writeAccessCost simtime.SimTime
}

// ReadWriteConfig configures a ReadWrite DRAM model.
type ReadWriteConfig struct {
	PerControllerBandwidthBytesPerNS float64
	ReadLatencyNS                    int64
	WriteLatencyNS                   int64
	Queue                            queuemodel.Model
	IsApplicationCore                ApplicationCoreGate
}

// NewReadWrite builds a ReadWrite DRAM model.
func NewReadWrite(cfg ReadWriteConfig) *ReadWrite {
	return &ReadWrite{
		base: base{
			isAppCore: cfg.IsApplicationCore,
			queue:     cfg.Queue,
		},
		bandwidth:       NewBandwidthBytesPerNS(cfg.PerControllerBandwidthBytesPerNS),
		readAccessCost:  simtime.NS(cfg.ReadLatencyNS),
		writeAccessCost: simtime.NS(cfg.WriteLatencyNS),
	}
}

// AccessLatency implements Model.
func (r *ReadWrite) AccessLatency(
	arrive simtime.SimTime,
	sizeBytes uint64,
	requester ids.CoreID,
	_ uint64,
	kind AccessKind,
	perf *shmemperf.Breakdown,
) simtime.SimTime {
	if !r.eligible(requester) {
		return simtime.Zero
	}

	accessCost := r.readAccessCost
	if kind == Write {
		accessCost = r.writeAccessCost
	}

	processing := r.bandwidth.RoundedLatency(8 * sizeBytes)
	queue := r.queueDelay(arrive, processing, requester)
	latency := queue.Add(processing).Add(accessCost)

	recordBreakdown(perf, arrive, queue, processing, accessCost)
	r.record(latency, queue)

	return latency
}

// NormalRNG is the minimal random source Normal needs: a deterministic,
// seedable generator of standard-normal samples.
type NormalRNG interface {
	NormFloat64() float64
}

// Normal is the "normal" DRAM variant: the access cost is drawn from a
// normal distribution with a configured mean and standard deviation,
// deterministic given the seed used to build rng.
type Normal struct {
	base
	bandwidth Bandwidth
	meanNS    float64
	stddevNS  float64
	rng       NormalRNG
}

// NormalConfig configures a Normal DRAM model.
type NormalConfig struct {
	PerControllerBandwidthBytesPerNS float64
	MeanLatencyNS                    float64
	StddevLatencyNS                  float64
	RNG                              NormalRNG
	Queue                            queuemodel.Model
	IsApplicationCore                ApplicationCoreGate
}

// NewNormal builds a Normal DRAM model.
func NewNormal(cfg NormalConfig) *Normal {
	if cfg.RNG == nil {
		panic("dramperf: Normal requires an RNG")
	}
	return &Normal{
		base: base{
			isAppCore: cfg.IsApplicationCore,
			queue:     cfg.Queue,
		},
		bandwidth: NewBandwidthBytesPerNS(cfg.PerControllerBandwidthBytesPerNS),
		meanNS:    cfg.MeanLatencyNS,
		stddevNS:  cfg.StddevLatencyNS,
		rng:       cfg.RNG,
	}
}

// AccessLatency implements Model.
func (n *Normal) AccessLatency(
	arrive simtime.SimTime,
	sizeBytes uint64,
	requester ids.CoreID,
	_ uint64,
	_ AccessKind,
	perf *shmemperf.Breakdown,
) simtime.SimTime {
	if !n.eligible(requester) {
		return simtime.Zero
	}

	sample := n.meanNS + n.rng.NormFloat64()*n.stddevNS
	if sample < 0 {
		sample = 0
	}
	accessCost := simtime.NSFloat(sample)

	processing := n.bandwidth.RoundedLatency(8 * sizeBytes)
	queue := n.queueDelay(arrive, processing, requester)
	latency := queue.Add(processing).Add(accessCost)

	recordBreakdown(perf, arrive, queue, processing, accessCost)
	n.record(latency, queue)

	return latency
}

// ModelType names a DRAM model variant for configuration-driven
// construction (perf_model/dram/type).
type ModelType string

const (
	TypeConstant  ModelType = "constant"
	TypeReadWrite ModelType = "readwrite"
	TypeNormal    ModelType = "normal"
)

// UnrecognizedTypeError reports a bad perf_model/dram/type value; fatal
// at construction.
type UnrecognizedTypeError struct{ Type string }

func (e UnrecognizedTypeError) Error() string {
	return fmt.Sprintf("dramperf: invalid DRAM model type %q", e.Type)
}
