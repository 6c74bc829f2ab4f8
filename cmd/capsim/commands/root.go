package commands

import (
	"capsim/internal/config"
	"capsim/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "capsim",
	Short: "CAPSIM is a discrete-event agent-based social simulation",
	Long: `CAPSIM simulates a population of agents that publish posts, make purchases,
and develop themselves, spreading trends whose virality and coverage grow with
interaction. Runs are persisted to SQLite in batched writes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd)
		if verbose {
			cfg.Verbose = true
		}

		if err := logging.Init(cfg.LogDir, cfg.Verbose); err != nil {
			return err
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("capsim starting")
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
