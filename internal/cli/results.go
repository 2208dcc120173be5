package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/store"
)

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <test>",
		Short: "Show detailed results for a test",
		Long: `Show per-variant performance, the z-test against the control,
Wilson intervals, lift, the selected winner and a recommendation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				test, err := findTest(ctx, s, args[0])
				if err != nil {
					return err
				}

				eng, cleanup, err := newEngine(ctx, s)
				if err != nil {
					return err
				}
				defer cleanup()

				ev, err := eng.Results(ctx, test.ID)
				if err != nil {
					return fmt.Errorf("failed to evaluate test: %w", err)
				}

				printResults(cmd.OutOrStdout(), ev)
				return nil
			})
		},
	}
}

func printResults(out io.Writer, ev *engine.Evaluation) {
	test := ev.Test

	fmt.Fprintf(out, "TEST: %s (id %d)\n", test.Name, test.ID)
	fmt.Fprintf(out, "STATUS: %s\n", test.Status)
	fmt.Fprintf(out, "DIMENSION: %s (primary metric: %s)\n", test.Dimension, test.Dimension.Primary())
	fmt.Fprintf(out, "CONFIDENCE: %.0f%%\n", float64(test.ConfidenceLevel)*100)
	if ev.Window.Empty() {
		fmt.Fprintln(out, "WINDOW: not started")
	} else {
		fmt.Fprintf(out, "WINDOW: %s to %s\n",
			ev.Window.From.Format(store.DateLayout), ev.Window.To.Format(store.DateLayout))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "VARIANT           CLICKS    CONV.    RATE     CI                P-VALUE   LIFT")
	fmt.Fprintln(out, strings.Repeat("─", 84))

	for _, r := range ev.Variants {
		name := r.Variant.Name
		if r.Variant.IsControl {
			name += "*"
		}
		if len(name) > 16 {
			name = name[:13] + "..."
		}

		ci := fmt.Sprintf("[%.1f%%, %.1f%%]", r.WilsonLower*100, r.WilsonUpper*100)
		if r.Performance.Clicks == 0 {
			ci = "N/A"
		}

		pValue, lift := "-", "-"
		if r.VsControl != nil {
			pValue = fmt.Sprintf("%.4f", r.VsControl.PValue)
			lift = formatLift(r.VsControl.Lift, r.VsControl.HasLift)
		}

		indicator := ""
		if r.IsWinner {
			indicator = " ← WINNER"
		}

		fmt.Fprintf(out, "%-16s  %-8s  %-7s  %-7s  %-16s  %-8s  %s%s\n",
			name,
			formatNumber(r.Performance.Clicks),
			formatNumber(r.Performance.Conversions),
			formatPercent(r.Performance.ConversionRate()),
			ci,
			pValue,
			lift,
			indicator,
		)
	}

	fmt.Fprintln(out)
	if ev.HasControl {
		fmt.Fprintln(out, "* control")
	}
	fmt.Fprintf(out, "Recommendation: %s\n", ev.Recommendation)
}

// formatPercent takes a rate already expressed in percent.
func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate)
}
