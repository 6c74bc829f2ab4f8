package commands

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"capsim/internal/engine"
	"capsim/internal/store"
)

var runFlags struct {
	agents   int
	days     int
	seed     int64
	realtime bool
	speed    float64
	dbPath   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation to completion",
	Long: `Starts a new simulation run and blocks until it completes or is stopped.
Ctrl+C once requests a graceful stop (queued system events drain, buffers
flush); a second Ctrl+C forces the stop (queue discarded, best-effort flush).`,
	RunE: runSimulation,
}

func init() {
	runCmd.Flags().IntVar(&runFlags.agents, "agents", 0, "number of agents (default from env)")
	runCmd.Flags().IntVar(&runFlags.days, "days", 0, "simulated duration in days")
	runCmd.Flags().Int64Var(&runFlags.seed, "seed", 0, "RNG seed (0 = time-based)")
	runCmd.Flags().BoolVar(&runFlags.realtime, "realtime", false, "pace sim time against the wall clock")
	runCmd.Flags().Float64Var(&runFlags.speed, "speed", 0, "realtime speed factor, sim-minutes per wall-minute")
	runCmd.Flags().StringVar(&runFlags.dbPath, "db", "", "SQLite database path")
	rootCmd.AddCommand(runCmd)
}

// applyFlagOverrides layers explicitly set CLI flags over the env config.
func applyFlagOverrides(cmd *cobra.Command) {
	for _, c := range cmd.Root().Commands() {
		if c.Name() != "run" {
			continue
		}
		if c.Flags().Changed("agents") {
			cfg.NumAgents = runFlags.agents
		}
		if c.Flags().Changed("days") {
			cfg.DurationDays = runFlags.days
		}
		if c.Flags().Changed("seed") {
			cfg.Seed = runFlags.seed
		}
		if c.Flags().Changed("realtime") {
			cfg.Realtime = runFlags.realtime
		}
		if c.Flags().Changed("speed") {
			cfg.SpeedFactor = runFlags.speed
		}
		if c.Flags().Changed("db") {
			cfg.DBPath = runFlags.dbPath
		}
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	repo, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()
	log.Info().Str("path", cfg.DBPath).Msg("database opened")

	var clock engine.Clock
	if cfg.Realtime {
		clock, err = engine.NewRealtimeClock(cfg.SpeedFactor)
		if err != nil {
			return err
		}
	} else {
		clock = engine.NewFastClock()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	eng := engine.New(cfg, repo, clock, rng, log.Logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	started := time.Now()
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancelRun()
		return eng.Start(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-sigCtx.Done():
		}
		log.Info().Msg("stop requested, draining")
		eng.Stop(engine.StopGraceful)

		// A second signal forces the stop.
		second := make(chan os.Signal, 1)
		signal.Notify(second, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(second)
		select {
		case <-gctx.Done():
		case <-second:
			log.Warn().Msg("second signal, forcing stop")
			eng.Stop(engine.StopForced)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}

	status := eng.Status()
	printSummary(status, time.Since(started))
	if status.Phase != engine.PhaseCompleted {
		os.Exit(1)
	}
	return nil
}

func printSummary(status engine.Status, elapsed time.Duration) {
	fmt.Printf("\nRun %s %s.\n", status.RunID, status.Phase)
	fmt.Printf("  events processed: %s\n", humanize.Comma(status.EventsProcessed))
	fmt.Printf("  sim time reached: %s (day %d)\n",
		engine.ActionTimestamp(status.SimTime), engine.Day(status.SimTime))
	fmt.Printf("  wall time:        %s\n", elapsed.Round(time.Millisecond))
}
