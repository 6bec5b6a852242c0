// Package simctx assembles the simulator's components into a single
// simulation context: a root value constructed once at startup and
// passed by shared handle to every component, so nothing holds
// process-wide mutable state. It owns the akita engine and monitor,
// the per-core performance models, the shared NoC and MCP, one DRAM
// controller per application core, and the lifecycle hook registry.
package simctx

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sarchlab/akita/v4/mem/idealmemcontroller"
	"github.com/sarchlab/akita/v4/mem/mem"
	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/akita/v4/sim/directconnection"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/carbonsim/coherence"
	"github.com/sarchlab/carbonsim/config"
	"github.com/sarchlab/carbonsim/coreperf"
	"github.com/sarchlab/carbonsim/coreperf/branchpred"
	"github.com/sarchlab/carbonsim/dramperf"
	"github.com/sarchlab/carbonsim/hooks"
	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/mcp"
	"github.com/sarchlab/carbonsim/netmsg"
	"github.com/sarchlab/carbonsim/noc"
	"github.com/sarchlab/carbonsim/queuemodel"
	"github.com/sarchlab/carbonsim/simtime"
	"github.com/sarchlab/carbonsim/stats"
)

// dramChannel pairs one analytically-timed dramperf.Model with the
// akita-scheduled idealmemcontroller.Comp that backs it: the ideal
// controller supplies the storage/monitoring substrate akita expects of
// a DRAM-shaped component, while dramperf computes the
// bandwidth+queueing+access latency on top of it.
type dramChannel struct {
	Model      dramperf.Model
	Controller *idealmemcontroller.Comp
	Link       *directconnection.Comp
}

// Context is the root simulation handle. Every field is populated once
// by Build and never replaced afterward; tests construct an independent
// Context per case rather than sharing process-wide state.
type Context struct {
	Config   *config.Root
	Topology ids.Topology
	FullMode bool

	Stats *stats.Registry
	Hooks *hooks.Registry

	NoC       *noc.Model
	MCP       *mcp.Server
	Directory *coherence.Directory

	Cores   []*coreperf.Model
	Drivers []*CoreDriver
	dram    []dramChannel

	Engine  sim.Engine
	Monitor *monitoring.Monitor

	// release times granted by the MCP's sync server, awaiting pickup by
	// the blocked driver they belong to. Only touched from RunTrace's
	// single-threaded merge loop.
	syncGrants map[ids.CoreID]simtime.SimTime

	skewScheme    mcp.ClockSkewScheme
	skewPerAccess bool

	outputDir  string
	outputFile string
}

// Build loads the config at path and constructs every component it
// describes, fatal on the first configuration error: missing required
// key, unrecognized enum value, or an incompatible topology such as
// lite mode with more than one process.
func Build(path string) (*Context, error) {
	root, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	mode, err := root.RequireEnum("general/mode", "full", "lite")
	if err != nil {
		return nil, err
	}
	fullMode := mode == "full"

	appCores := root.GetInt("general/total_cores", 1)
	numProcesses := root.GetInt("general/num_processes", 1)
	if !fullMode && numProcesses > 1 {
		return nil, fmt.Errorf("config: lite mode requires num_processes<=1, got %d", numProcesses)
	}

	dims := root.GetInt("network/analytical/n", 2)
	topology := ids.Topology{AppCores: appCores, NumProcesses: numProcesses, Dimensions: dims}

	ctx := &Context{
		Config:     root,
		Topology:   topology,
		FullMode:   fullMode,
		Stats:      stats.NewRegistry(),
		Hooks:      hooks.NewRegistry(),
		outputDir:  root.GetString("general/output_dir", "."),
		outputFile: root.GetString("general/output_file", "carbon_sim.stats"),
	}

	ctx.Engine = sim.NewSerialEngine()
	ctx.Monitor = monitoring.NewMonitor()
	ctx.Monitor.RegisterEngine(ctx.Engine)

	totalCores := topology.TotalCores(fullMode)

	ctx.NoC = noc.New(noc.Config{
		TotalCores:     totalCores,
		Dimensions:     dims,
		Tw2:            root.GetFloat("network/analytical/Tw2", 1),
		S:              root.GetFloat("network/analytical/s", 1),
		WidthBits:      root.GetInt("network/analytical/W", 128),
		UpdateInterval: simtime.NS(int64(root.GetInt("network/analytical/update_interval", 1000))),
		ProcessingCost: simtime.NS(int64(root.GetInt("network/analytical/processing_cost", 0))),
	})

	skewScheme := mcp.ClockSkewScheme(root.GetString("clock_skew_minimization/scheme", "none"))
	ctx.MCP = mcp.NewServer(topology.MCPCore(fullMode), skewScheme)
	ctx.Directory = coherence.NewDirectory()
	ctx.syncGrants = map[ids.CoreID]simtime.SimTime{}
	ctx.skewScheme = skewScheme
	ctx.skewPerAccess = skewScheme == mcp.ClockSkewPerAccess

	if err := ctx.buildDRAM(root, topology); err != nil {
		return nil, err
	}
	if err := ctx.buildCores(root, topology); err != nil {
		return nil, err
	}
	ctx.buildDrivers(topology)

	return ctx, nil
}

func (c *Context) isApplicationCore(id ids.CoreID) bool {
	return c.Topology.IsApplicationCore(id)
}

func (c *Context) buildDRAM(root *config.Root, topology ids.Topology) error {
	dramType, err := root.RequireEnum("perf_model/dram/type", "constant", "readwrite", "normal")
	if err != nil {
		return err
	}

	queueEnabled := root.GetBool("perf_model/dram/queue_model/enabled", true)
	var queueCfg queuemodel.Config
	if queueEnabled {
		disc, err := root.RequireEnum("perf_model/dram/queue_model/type", "none", "history_list", "basic")
		if err != nil {
			return err
		}
		queueCfg = queuemodel.Config{
			Discipline:     queuemodel.Discipline(disc),
			HistoryListMax: root.GetInt("perf_model/dram/queue_model/history_list/max_list_size", queuemodel.DefaultHistoryListSize),
		}
	} else {
		queueCfg = queuemodel.Config{Discipline: queuemodel.None}
	}

	bandwidth := root.GetFloat("perf_model/dram/per_controller_bandwidth", 8)

	c.dram = make([]dramChannel, topology.AppCores)
	for i := 0; i < topology.AppCores; i++ {
		q := queuemodel.New(queueCfg)

		var model dramperf.Model
		switch dramType {
		case "constant":
			model = dramperf.NewConstant(dramperf.ConstantConfig{
				PerControllerBandwidthBytesPerNS: bandwidth,
				LatencyNS:                        int64(root.GetInt("perf_model/dram/latency", 50)),
				Queue:                            q,
				IsApplicationCore:                c.isApplicationCore,
				Registry:                         c.Stats,
				CoreIndex:                        uint32(i),
			})
		case "readwrite":
			model = dramperf.NewReadWrite(dramperf.ReadWriteConfig{
				PerControllerBandwidthBytesPerNS: bandwidth,
				ReadLatencyNS:                    int64(root.GetInt("perf_model/dram/read_latency", 50)),
				WriteLatencyNS:                   int64(root.GetInt("perf_model/dram/write_latency", 50)),
				Queue:                            q,
				IsApplicationCore:                c.isApplicationCore,
			})
		case "normal":
			model = dramperf.NewNormal(dramperf.NormalConfig{
				PerControllerBandwidthBytesPerNS: bandwidth,
				MeanLatencyNS:                    root.GetFloat("perf_model/dram/mean_latency", 50),
				StddevLatencyNS:                  root.GetFloat("perf_model/dram/stddev_latency", 5),
				RNG:                              rand.New(rand.NewSource(int64(i) + 1)),
				Queue:                            q,
				IsApplicationCore:                c.isApplicationCore,
			})
		}
		model.Enable()

		controller := idealmemcontroller.MakeBuilder().
			WithEngine(c.Engine).
			WithNewStorage(4 * mem.GB).
			WithLatency(1).
			Build(fmt.Sprintf("DRAM%d", i))

		link := directconnection.MakeBuilder().
			WithEngine(c.Engine).
			WithFreq(1 * sim.GHz).
			Build(fmt.Sprintf("DRAM%dLink", i))
		link.PlugIn(controller.GetPortByName("Top"))

		c.dram[i] = dramChannel{Model: model, Controller: controller, Link: link}
		c.Monitor.RegisterComponent(controller)
	}
	return nil
}

// buildDrivers constructs one CoreDriver per application core and plugs
// it into that core's DRAM link, the second endpoint createSharedMemory's
// pattern expects (the first being the controller's Top port, wired in
// buildDRAM). Each driver is the akita component that actually exercises
// the engine and the memory topology Build assembles.
func (c *Context) buildDrivers(topology ids.Topology) {
	c.Drivers = make([]*CoreDriver, topology.AppCores)
	for i := 0; i < topology.AppCores; i++ {
		driver := newCoreDriver(c, ids.CoreID(i), c.dram[i].Controller, fmt.Sprintf("Core%d", i))
		c.dram[i].Link.PlugIn(driver.memPort)
		c.Monitor.RegisterComponent(driver)
		c.Drivers[i] = driver
	}
}

func (c *Context) buildCores(root *config.Root, topology ids.Topology) error {
	predType, err := root.RequireEnum("perf_model/branch_predictor/type", "none", "one_bit", "pentium_m")
	if err != nil {
		return err
	}

	mhz := root.GetFloat("perf_model/core/frequency_mhz", 1000)
	period := simtime.PeriodFromFreqHz(mhz * 1e6)

	c.Cores = make([]*coreperf.Model, topology.AppCores)
	for i := 0; i < topology.AppCores; i++ {
		var predictor branchpred.Predictor
		switch predType {
		case "one_bit":
			predictor = branchpred.NewOneBit(root.GetInt("perf_model/branch_predictor/size", 1024))
		case "pentium_m":
			predictor = branchpred.NewPentiumM(root.GetInt("perf_model/branch_predictor/size", 12))
		}

		c.Cores[i] = coreperf.New(coreperf.Config{
			Period:                  period,
			Predictor:               predictor,
			MispredictPenaltyCycles: uint64(root.GetInt("perf_model/branch_predictor/mispredict_penalty", 10)),
		})
	}
	return nil
}

// DRAM returns the DRAM model attached to application core i.
func (c *Context) DRAM(i int) dramperf.Model { return c.dram[i].Model }

// RunTrace installs each application core's dynamic instruction/
// memory-access stream onto its CoreDriver and retires every stream,
// folding every memory access's coherence/NoC/DRAM cost and every sync
// op's MCP round trip into coreperf's elapsed time as it goes: a pushed
// instruction stream drives coreperf through coherence and the NoC to
// DRAM/MCP and back.
//
// The merge loop always steps the runnable core with the smallest
// simulated elapsed time, so cross-core MCP requests are processed in
// arrival order without a global simulation clock. Blocked
// sync waiters become runnable again when another core's operation
// delivers their grant; if every remaining driver is blocked, the trace
// itself deadlocks and RunTrace reports it rather than spinning.
func (c *Context) RunTrace(traces map[ids.CoreID][]TraceOp) error {
	for core, ops := range traces {
		if int(core) < 0 || int(core) >= len(c.Drivers) {
			return fmt.Errorf("simctx: trace for core %d has no driver", core)
		}
		c.Drivers[core].PushTrace(ops)
	}

	for {
		var next *CoreDriver
		for _, d := range c.Drivers {
			if !d.runnable() {
				continue
			}
			if next == nil || c.Cores[d.core].Elapsed().Before(c.Cores[next.core].Elapsed()) {
				next = d
			}
		}
		if next == nil {
			for _, d := range c.Drivers {
				if !d.Done() {
					return fmt.Errorf("simctx: trace deadlock: core %d blocked on a sync grant that never arrives", d.core)
				}
			}
			break
		}
		next.step()
	}

	// drain the wire traffic the drivers issued onto the akita memory
	// network.
	return c.Engine.Run()
}

// mcpCall performs one MCP RPC as two modeled network messages: the
// request transits the NoC from requester to the MCP core, the matching
// sub-server runs, and the response transits back. Grants carried in a
// sync response are parked for their owning cores to pick up.
func (c *Context) mcpCall(requester ids.CoreID, kind netmsg.MCPRequestKind, payload []byte, at simtime.SimTime) error {
	mcpCore := c.MCP.Core

	toMCP := c.transit(requester, mcpCore, at, uint64(8+len(payload)))

	resp, err := c.MCP.Dispatch(netmsg.MCPRequest{Kind: kind, Requester: requester, Payload: payload})
	if err != nil {
		return err
	}

	if kind == netmsg.MCPSync && resp.Ok {
		reply, err := mcp.DecodeSyncReply(resp.Payload)
		if err != nil {
			return err
		}
		for _, g := range reply.Grants {
			c.syncGrants[g.Core] = g.Release
		}
	}

	c.transit(mcpCore, requester, at.Add(toMCP), uint64(8+len(resp.Payload)))
	return nil
}

// utilizationCall reports a node's local utilization to the MCP and
// applies the returned GlobalUtilization broadcast to that node's view.
func (c *Context) utilizationCall(node ids.CoreID, local float64, at simtime.SimTime) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, math.Float64bits(local))

	mcpCore := c.MCP.Core
	toMCP := c.transit(node, mcpCore, at, uint64(8+len(payload)))

	resp, err := c.MCP.Dispatch(netmsg.MCPRequest{Kind: netmsg.MCPUtilization, Requester: node, Payload: payload})
	if err != nil {
		return err
	}
	if len(resp.Payload) < 8 {
		return fmt.Errorf("simctx: short utilization response")
	}

	c.transit(mcpCore, node, at.Add(toMCP), uint64(8+len(resp.Payload)))

	c.NoC.ApplyGlobalUtilization(node, math.Float64frombits(binary.LittleEndian.Uint64(resp.Payload)))
	return nil
}

func (c *Context) hasGrant(core ids.CoreID) bool {
	_, ok := c.syncGrants[core]
	return ok
}

func (c *Context) takeGrant(core ids.CoreID) (simtime.SimTime, bool) {
	release, ok := c.syncGrants[core]
	if ok {
		delete(c.syncGrants, core)
	}
	return release, ok
}

// Start fires the Start lifecycle hook when the simulator itself comes
// up, before any ROI.
func (c *Context) Start() {
	logrus.WithField("component", "simctx").Info("simulator starting")
	c.Hooks.Fire(hooks.Start, nil)
}

// BeginROI fires the ROIBegin hook and switches the magic interface into
// the ROI.
func (c *Context) BeginROI() {
	c.MCP.Magic.SetROI(true)
	c.Hooks.Fire(hooks.ROIBegin, nil)
}

// EndROI fires the ROIEnd hook and leaves the ROI.
func (c *Context) EndROI() {
	c.MCP.Magic.SetROI(false)
	c.Hooks.Fire(hooks.ROIEnd, nil)
}

// End fires the End hook and flushes statistics. Components are not
// otherwise torn down.
func (c *Context) End() error {
	c.Hooks.Fire(hooks.End, nil)

	return c.DumpStats()
}

// statsPath returns the stats output destination:
// <output_dir>/<output_file>, or sim-<pid>.stats in multi-process mode
// so concurrent processes don't clobber each other.
func (c *Context) statsPath() string {
	name := c.outputFile
	if c.FullMode && c.Topology.NumProcesses > 1 {
		name = fmt.Sprintf("sim-%d.stats", os.Getpid())
	}
	return filepath.Join(c.outputDir, name)
}

// DumpStats writes the statistics registry to the configured output path.
func (c *Context) DumpStats() error {
	f, err := os.Create(c.statsPath())
	if err != nil {
		return fmt.Errorf("simctx: creating stats file: %w", err)
	}
	defer f.Close()

	return c.Stats.Dump("sim", f)
}
