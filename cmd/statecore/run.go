package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "v0.1.0"

var runCycles int // overrides [simulation] cycles when set

// runCmd drives the simulation loop
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation for a number of cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		printBanner(version)
		printSection("data")
		sim, err := newSimulation(ctx, cfg, log, simOptions{checkpoints: true})
		if err != nil {
			return err
		}
		defer sim.close()

		printStat("terrain categories", sim.tables.Terrain.Count())
		printStat("countries", sim.tables.Countries.Count())
		printStat("attribute kinds", sim.tables.Kinds.Count())
		printStat("provinces", sim.seeds)
		printStat("scripts", sim.scripts)
		printOK("world seeded")
		fmt.Println()

		printSection("capacity")
		printStat("entity capacity", sim.ws.Store().Capacity())
		for _, u := range sim.ws.Sparse().Usage() {
			printUsage(u.Name, u.Pairs, u.Capacity, u.Ratio)
		}
		if sim.ckpt != nil {
			printOK(fmt.Sprintf("checkpoints every %d cycles, keeping %d", cfg.Checkpoint.IntervalCycles, cfg.Checkpoint.Keep))
		}
		fmt.Println()

		n := cfg.Simulation.Cycles
		if cmd.Flags().Changed("cycles") {
			n = runCycles
		}
		printSection("simulation")
		if n == 0 {
			printReady(fmt.Sprintf("running until interrupted (tick: %s)", cfg.Simulation.TickRate))
		} else {
			printReady(printer.Sprintf("running %d cycles (tick: %s)", n, cfg.Simulation.TickRate))
		}

		start := time.Now()
		done := sim.run(ctx, n, cfg.Simulation.TickRate)
		elapsed := time.Since(start)

		sum := sim.ws.Store().View().Checksum()
		log.Info("simulation finished",
			zap.Int("cycles", done),
			zap.Duration("elapsed", elapsed),
			zap.Int32("year", sim.ws.Year()),
			zap.Uint64("events", sim.dispatch.Delivered()),
			zap.Uint64("history_records", sim.recorder.Recorded()),
			zap.String("checksum", hex.EncodeToString(sum[:])))

		fmt.Println()
		printSection("result")
		printStat("cycles", done)
		printStat("events delivered", int(sim.dispatch.Delivered()))
		printStat("history records", int(sim.recorder.Recorded()))
		printStat("entities with history", sim.ws.History().Len())
		printStat("entities removed", int(sim.ws.Cascaded()))
		for _, tm := range sim.runner.Timings() {
			printTiming("phase "+tm.Phase.String(), tm.Total, done)
		}
		for _, u := range sim.ws.Sparse().Usage() {
			printUsage(u.Name, u.Pairs, u.Capacity, u.Ratio)
		}
		printOK(fmt.Sprintf("year %d, checksum %s", sim.ws.Year(), hex.EncodeToString(sum[:8])))
		if sim.ckpt != nil {
			switch checked, matched := sim.ckpt.Verified(); {
			case !checked:
			case matched:
				printOK("matches the stored checkpoint")
			default:
				printFail("diverged from the stored checkpoint")
			}
		}
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runCycles, "cycles", 0, "Number of cycles to run (0 = until interrupted)")
	rootCmd.AddCommand(runCmd)
}
