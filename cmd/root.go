// Package cmd implements the carbonsim CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/carbonsim/dyninst"
	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/simctx"
	"github.com/sarchlab/carbonsim/simtime"
)

// traceEntry is one line of the YAML trace format this CLI accepts: a
// minimal stand-in for the dynamic instruction stream a real binary
// instrumentation front end would produce, just structured enough to
// exercise simctx end to end.
type traceEntry struct {
	Core    int    `yaml:"core"`
	Kind    string `yaml:"kind"` // read, write, fixed, static, branch, spawn, lock, unlock, barrier
	Address uint64 `yaml:"address"`
	Size    uint64 `yaml:"size"`
	NS      int64  `yaml:"ns"`
	Static  string `yaml:"static"`
	Target  uint64 `yaml:"target"`
	Taken   bool   `yaml:"taken"`
	ID      uint64 `yaml:"id"`
	Count   int    `yaml:"count"`
}

// loadTrace parses path's trace entries into one TraceOp stream per core.
// An empty path yields no traces: the run falls back to driving the
// akita engine with nothing scheduled, per cmd's lifecycle below.
func loadTrace(path string) (map[ids.CoreID][]simctx.TraceOp, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("carbonsim: reading trace %s: %w", path, err)
	}

	var entries []traceEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("carbonsim: parsing trace %s: %w", path, err)
	}

	out := map[ids.CoreID][]simctx.TraceOp{}
	for _, e := range entries {
		core := ids.CoreID(e.Core)
		switch e.Kind {
		case "read":
			out[core] = append(out[core], simctx.MemoryOp(e.Address, e.Size, false))
		case "write":
			out[core] = append(out[core], simctx.MemoryOp(e.Address, e.Size, true))
		case "fixed":
			out[core] = append(out[core], simctx.InstructionOp(dyninst.Fixed(simtime.NS(e.NS))))
		case "static":
			out[core] = append(out[core], simctx.InstructionOp(dyninst.Static(dyninst.StaticKind(e.Static))))
		case "branch":
			out[core] = append(out[core], simctx.InstructionOp(dyninst.Branch(e.Address, e.Target, e.Taken)))
		case "spawn":
			out[core] = append(out[core], simctx.InstructionOp(dyninst.Spawn(simtime.NS(e.NS))))
		case "lock":
			out[core] = append(out[core], simctx.LockOp(e.ID))
		case "unlock":
			out[core] = append(out[core], simctx.UnlockOp(e.ID))
		case "barrier":
			out[core] = append(out[core], simctx.BarrierOp(e.ID, e.Count))
		default:
			return nil, fmt.Errorf("carbonsim: trace %s: unknown op kind %q", path, e.Kind)
		}
	}
	return out, nil
}

var (
	configPath string
	tracePath  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "carbonsim",
	Short: "Multicore architectural simulator back end",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from a config and trace",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("carbonsim: invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)

		logrus.WithFields(logrus.Fields{
			"config": configPath,
			"trace":  tracePath,
		}).Info("loading simulation config")

		ctx, err := simctx.Build(configPath)
		if err != nil {
			logrus.Fatalf("carbonsim: %v", err)
		}

		traces, err := loadTrace(tracePath)
		if err != nil {
			logrus.Fatalf("carbonsim: %v", err)
		}

		ctx.Start()
		ctx.BeginROI()

		// The dynamic instruction stream itself is normally produced by a
		// binary instrumentation front end living outside this module;
		// RunTrace is the seam a real one plugs into. With no --trace given,
		// traces is empty: no driver steps and the engine runs with no
		// events scheduled.
		if err := ctx.RunTrace(traces); err != nil {
			logrus.Fatalf("carbonsim: %v", err)
		}

		ctx.EndROI()
		if err := ctx.End(); err != nil {
			logrus.Fatalf("carbonsim: %v", err)
		}

		logrus.Info("simulation complete")
		atexit.Exit(0)
	},
}

// Execute runs the root command, exiting non-zero on a fatal simulator
// error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "carbon_sim.cfg", "Path to the simulator config (YAML)")
	runCmd.Flags().StringVar(&tracePath, "trace", "", "Path to the dynamic instruction trace")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
}
