package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/config"
)

var (
	dbPath     string
	configPath string

	cfg    config.Config
	logger *slog.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "adlift",
		Short: "adlift - statistical evaluation for ad A/B tests",
		Long: `adlift evaluates ad A/B tests against a daily performance ledger.

It runs a two-proportion z-test for every challenger against the control,
locks in a winner once one is significant and has enough samples, and
tracks progress with early warnings for stalled or underpowered tests.

Single Go binary, embedded SQLite, optional Redis results cache.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	root.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default from config, ./adlift.db)")
	root.PersistentFlags().StringVar(&configPath, "config", "adlift.yaml", "config file path")

	root.AddCommand(
		newServeCmd(),
		newCreateCmd(),
		newStartCmd(),
		newPauseCmd(),
		newListCmd(),
		newResultsCmd(),
		newStatusCmd(),
		newConcludeCmd(),
		newMonitorCmd(),
		newImportCmd(),
		newExportCmd(),
		newTokenCmd(),
	)
	return root
}

func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig resolves .env, the config file and ADLIFT_* variables, then
// lets an explicit --db win.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	if cmd.Flags().Changed("db") {
		cfg.DBPath = dbPath
	}
	dbPath = cfg.DBPath

	logger = cfg.Logger(os.Stderr)
	slog.SetDefault(logger)
	return nil
}
