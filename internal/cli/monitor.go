package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/monitor"
	"github.com/headline-goat/adlift/internal/store"
)

func newMonitorCmd() *cobra.Command {
	var (
		once     bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Auto-conclude running tests",
		Long: `Check every running test, log its warnings, and conclude it once a
winner is found or its end date has passed.

Examples:
  adlift monitor --once
  adlift monitor --interval 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = cfg.MonitorInterval
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withStore(func(s *store.SQLiteStore) error {
				eng, cleanup, err := newEngine(ctx, s)
				if err != nil {
					return err
				}
				defer cleanup()

				m := monitor.New(s, eng, logger, cfg.MonitorConcurrency)
				if !once {
					return m.Run(ctx, interval)
				}

				outcomes, err := m.RunOnce(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(outcomes) == 0 {
					fmt.Fprintln(out, "No running tests.")
					return nil
				}
				for _, o := range outcomes {
					switch {
					case o.Err != nil:
						fmt.Fprintf(out, "%s: error: %v\n", o.TestName, o.Err)
					case o.Concluded:
						fmt.Fprintf(out, "%s: concluded (%s)\n", o.TestName, o.Reason)
					default:
						fmt.Fprintf(out, "%s: running, %d warnings\n", o.TestName, len(o.Warnings))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single sweep and exit")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "time between sweeps (default from config)")
	return cmd
}
