package simctx_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarchlab/carbonsim/dyninst"
	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/simctx"
	"github.com/sarchlab/carbonsim/simtime"
)

func buildContext(t *testing.T) *simctx.Context {
	t.Helper()

	dir := t.TempDir()
	cfg := `
general:
  mode: lite
  total_cores: 2
  num_processes: 1
  output_dir: ` + dir + `
  output_file: test.stats
perf_model:
  dram:
    type: constant
    latency: 50
    per_controller_bandwidth: 8
    queue_model:
      enabled: true
      type: basic
  branch_predictor:
    type: one_bit
    size: 16
    mispredict_penalty: 10
  core:
    frequency_mhz: 1000
network:
  analytical:
    n: 2
    Tw2: 1
    s: 1
    W: 32
    update_interval: 100000
    processing_cost: 0
clock_skew_minimization:
  scheme: none
`
	path := filepath.Join(dir, "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	ctx, err := simctx.Build(path)
	require.NoError(t, err)
	return ctx
}

func TestBuildRejectsLiteModeWithMultipleProcesses(t *testing.T) {
	dir := t.TempDir()
	cfg := `
general:
  mode: lite
  total_cores: 2
  num_processes: 2
perf_model:
  dram:
    type: constant
    queue_model:
      type: basic
  branch_predictor:
    type: none
`
	path := filepath.Join(dir, "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	_, err := simctx.Build(path)
	assert.Error(t, err)
}

// TestRunTraceSingleRead drives one load end to end: coherence miss,
// zero-distance NoC transit (core 0 is its own home node), and a DRAM
// access of 1ns transfer + 50ns device cost.
func TestRunTraceSingleRead(t *testing.T) {
	ctx := buildContext(t)

	err := ctx.RunTrace(map[ids.CoreID][]simctx.TraceOp{
		0: {simctx.MemoryOp(0, 8, false)},
	})
	require.NoError(t, err)

	assert.Equal(t, simtime.NS(51), ctx.Cores[0].Elapsed())
	assert.Equal(t, uint64(1), ctx.DRAM(0).TotalAccesses())
}

// TestRunTraceMutexContention: core 0 acquires at t=100 and unlocks at
// t=300; core 1 requests at t=150 and pays a 150ns SYNC stall, landing
// both cores at t=300.
func TestRunTraceMutexContention(t *testing.T) {
	ctx := buildContext(t)

	err := ctx.RunTrace(map[ids.CoreID][]simctx.TraceOp{
		0: {
			simctx.InstructionOp(dyninst.Fixed(simtime.NS(100))),
			simctx.LockOp(1),
			simctx.InstructionOp(dyninst.Fixed(simtime.NS(200))),
			simctx.UnlockOp(1),
		},
		1: {
			simctx.InstructionOp(dyninst.Fixed(simtime.NS(150))),
			simctx.LockOp(1),
			simctx.UnlockOp(1),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, simtime.NS(300), ctx.Cores[0].Elapsed())
	assert.Equal(t, simtime.NS(300), ctx.Cores[1].Elapsed())
}

// TestRunTraceBarrier reproduces the barrier scenario: both arrivals are
// released at the latest arrival time.
func TestRunTraceBarrier(t *testing.T) {
	ctx := buildContext(t)

	err := ctx.RunTrace(map[ids.CoreID][]simctx.TraceOp{
		0: {
			simctx.InstructionOp(dyninst.Fixed(simtime.NS(100))),
			simctx.BarrierOp(7, 2),
		},
		1: {
			simctx.InstructionOp(dyninst.Fixed(simtime.NS(200))),
			simctx.BarrierOp(7, 2),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, simtime.NS(200), ctx.Cores[0].Elapsed())
	assert.Equal(t, simtime.NS(200), ctx.Cores[1].Elapsed())
}

func TestRunTraceReportsDeadlock(t *testing.T) {
	ctx := buildContext(t)

	// core 0 never unlocks, so core 1's lock can never be granted.
	err := ctx.RunTrace(map[ids.CoreID][]simctx.TraceOp{
		0: {simctx.LockOp(1)},
		1: {simctx.LockOp(1)},
	})
	assert.Error(t, err)
}

func TestLifecycleWritesStatsFile(t *testing.T) {
	ctx := buildContext(t)

	ctx.Start()
	ctx.BeginROI()
	assert.True(t, ctx.MCP.Magic.InROI())

	err := ctx.RunTrace(map[ids.CoreID][]simctx.TraceOp{
		0: {simctx.MemoryOp(0, 8, false)},
	})
	require.NoError(t, err)

	ctx.EndROI()
	assert.False(t, ctx.MCP.Magic.InROI())
	require.NoError(t, ctx.End())

	data, err := os.ReadFile(filepath.Join(ctx.Config.GetString("general/output_dir", "."), "test.stats"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "sim.dram[0]."))
}
