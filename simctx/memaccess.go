package simctx

import (
	"github.com/sarchlab/carbonsim/coherence"
	"github.com/sarchlab/carbonsim/dramperf"
	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/netmsg"
	"github.com/sarchlab/carbonsim/shmemperf"
	"github.com/sarchlab/carbonsim/simtime"
)

// homeCore maps an address to the application core whose DRAM controller
// and directory shard own it: a simple cache-line-interleaved mapping,
// independent of which core is asking, spreading a shared address space
// over the one-controller-per-core layout. 64 is the assumed cache-line
// size.
func (c *Context) homeCore(address uint64) ids.CoreID {
	n := c.Topology.AppCores
	if n <= 0 {
		return 0
	}
	return ids.CoreID((address / 64) % uint64(n))
}

// MemoryAccess is the memory subsystem's single entry point: it runs one
// coherence transaction for requester's read or write of address
// (coherence.Directory.Access), routes the resulting traffic across the
// analytical NoC to and from the home core, issues a DRAM access through
// that core's dramperf.Model when the transaction is a genuine miss, and
// returns the total latency the caller folds into the requester's elapsed
// time. This ties coreperf's memory dyn-info handling to coherence, noc,
// and dramperf into one simulated access:
// front end -> memory subsystem -> NoC -> DRAM -> cost folded back.
func (c *Context) MemoryAccess(
	requester ids.CoreID,
	address, sizeBytes uint64,
	kind coherence.AccessKind,
	arrive simtime.SimTime,
	perf *shmemperf.Breakdown,
) simtime.SimTime {
	home := c.homeCore(address)

	res, err := c.Directory.Access(requester, address, kind)
	if err != nil {
		panic(err)
	}

	toHome := c.transit(requester, home, arrive, sizeBytes)
	atHome := arrive.Add(toHome)

	var dramLatency simtime.SimTime
	if res.NeedDRAM {
		dramLatency = c.dram[home].Model.AccessLatency(atHome, sizeBytes, requester, address, dramAccessKind(kind), perf)
	}

	// Invalidations fan out from the home node in parallel with the DRAM
	// fetch; their transit cost is accounted for (so NoC utilization
	// reflects them) but does not extend the requester's critical path.
	// No invalidation-ack barrier is modeled.
	for _, other := range res.Invalidate {
		c.transit(home, other, atHome, sizeBytes)
	}

	back := c.transit(home, requester, atHome.Add(dramLatency), sizeBytes)

	return toHome.Add(dramLatency).Add(back)
}

func dramAccessKind(k coherence.AccessKind) dramperf.AccessKind {
	if k == coherence.Write {
		return dramperf.Write
	}
	return dramperf.Read
}

// transit routes one packet from src to dst over the NoC and returns the
// elapsed transit time. Same-core transit costs nothing, matching Route's
// magic-routing rule for src == dst.
func (c *Context) transit(src, dst ids.CoreID, at simtime.SimTime, sizeBytes uint64) simtime.SimTime {
	hop := c.NoC.Route(netmsg.Packet{
		Sender:   src,
		Receiver: dst,
		Type:     netmsg.TypeSharedMemReq,
		Length:   sizeBytes,
		TimeFS:   at.FS(),
	}, src)
	return simtime.FS(hop.ArrivalFS).Sub(at)
}
