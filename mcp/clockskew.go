package mcp

import (
	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/simtime"
)

// ClockSkewScheme names how the clock-skew server bounds divergence
// between cores' simulated clocks, matching the
// clock_skew_minimization/scheme config key.
type ClockSkewScheme string

const (
	ClockSkewNone      ClockSkewScheme = "none"
	ClockSkewBarrier   ClockSkewScheme = "barrier"
	ClockSkewPerAccess ClockSkewScheme = "per_access"
)

// ClockSkewServer bounds the maximum simulated-time difference between
// any two active cores by delaying fast cores. It tracks each core's
// latest reported simulated time and, depending on scheme, tells a
// reporting core how long to additionally wait before proceeding.
type ClockSkewServer struct {
	scheme ClockSkewScheme
	times  map[ids.CoreID]simtime.SimTime
}

// NewClockSkewServer constructs a clock-skew server using scheme.
func NewClockSkewServer(scheme ClockSkewScheme) *ClockSkewServer {
	return &ClockSkewServer{scheme: scheme, times: map[ids.CoreID]simtime.SimTime{}}
}

// Report records core's current simulated time and returns the additional
// delay (if any) it must wait before the rest of the active cores catch
// up, bounding skew. None never delays. Barrier delays a core until every
// other core that has reported is within one step of it (i.e. holds it at
// the minimum reported time across cores, like a loose barrier). PerAccess
// applies the same bound but is expected to be invoked on every memory
// access rather than only at barrier-style checkpoints; the bounding rule
// is identical, only the call frequency differs, so both share this
// implementation.
func (c *ClockSkewServer) Report(core ids.CoreID, at simtime.SimTime) simtime.SimTime {
	if c.scheme == ClockSkewNone {
		c.times[core] = at
		return simtime.Zero
	}

	c.times[core] = at

	min := at
	for _, t := range c.times {
		min = simtime.Min(min, t)
	}

	// a core ahead of the slowest core waits for the gap to close; this
	// report itself doesn't know the future, so it reports only the skew
	// observed so far.
	if at.After(min) {
		return at.Sub(min)
	}
	return simtime.Zero
}

// Slowest returns the minimum reported simulated time across all cores
// that have reported so far, the bound every other core is being held to.
func (c *ClockSkewServer) Slowest() simtime.SimTime {
	first := true
	var min simtime.SimTime
	for _, t := range c.times {
		if first || t.Before(min) {
			min = t
			first = false
		}
	}
	return min
}
