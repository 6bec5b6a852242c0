package mcp

import "github.com/sarchlab/carbonsim/ids"

// UtilizationUpdate is the message a NoC node sends to the MCP once per
// update_interval, carrying its locally observed flits_sent/elapsed
// utilization.
type UtilizationUpdate struct {
	Node  ids.CoreID
	Value float64
}

// GlobalUtilization is the MCP's broadcast reply: the current aggregate
// estimate every node's contention term reads.
type GlobalUtilization struct {
	Value float64
}

// UtilizationAggregator implements the MCP side of the utilization
// dissemination. The cross-node aggregation is "latest wins": each
// UtilizationUpdate simply replaces the global estimate rather than
// averaging across nodes, so the aggregate always reflects whichever
// node reported most recently.
type UtilizationAggregator struct {
	global float64
}

// NewUtilizationAggregator starts with global utilization at 0, the
// invariant-respecting initial value (0 <= p < 1).
func NewUtilizationAggregator() *UtilizationAggregator {
	return &UtilizationAggregator{}
}

// Apply folds in a node's update and returns the broadcast to send to
// every node.
func (u *UtilizationAggregator) Apply(update UtilizationUpdate) GlobalUtilization {
	if update.Value < 0 {
		update.Value = 0
	}
	if update.Value >= 1 {
		update.Value = 0.999999
	}
	u.global = update.Value
	return GlobalUtilization{Value: u.global}
}

// Current returns the last broadcast value without folding in a new
// update.
func (u *UtilizationAggregator) Current() GlobalUtilization {
	return GlobalUtilization{Value: u.global}
}
