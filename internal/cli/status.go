package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <test>",
		Short: "Show progress, the current leader and warnings",
		Args:  cobra.ExactArgs(1),
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

				st, err := eng.Status(ctx, test.ID)
				if err != nil {
					return fmt.Errorf("failed to evaluate test: %w", err)
				}

				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
}

func printStatus(out io.Writer, st *engine.Status) {
	test := st.Evaluation.Test
	p := st.Progress

	fmt.Fprintf(out, "TEST: %s (id %d)\n", test.Name, test.ID)
	fmt.Fprintf(out, "STATUS: %s\n", test.Status)
	fmt.Fprintf(out, "PROGRESS: %s / %s samples (%.1f%%)\n",
		formatNumber(p.TotalSamples), formatNumber(p.MinSamplesRequired), p.CompletionPercentage)
	fmt.Fprintf(out, "RUNNING: %.1f hours\n", p.HoursRunning)
	if p.EstimatedCompletion != nil {
		fmt.Fprintf(out, "ESTIMATED COMPLETION: %s\n", p.EstimatedCompletion.UTC().Format(store.DateLayout))
	}

	if l := st.CurrentLeader; l != nil {
		kind := "by volume"
		if l.IsSignificant {
			kind = fmt.Sprintf("significant, %.1f%% confidence", l.Confidence*100)
		}
		fmt.Fprintf(out, "LEADER: %s with %s %s, lift %s (%s)\n",
			l.Name, formatNumber(l.PrimaryValue), l.PrimaryMetric, formatLift(l.Lift, l.HasLift), kind)
	}

	if st.IsComplete {
		fmt.Fprintln(out, "COMPLETE: yes")
	}
	if st.WinnerVariantID != nil {
		name := fmt.Sprintf("variant %d", *st.WinnerVariantID)
		if r, ok := st.Evaluation.Result(*st.WinnerVariantID); ok {
			name = r.Variant.Name
		}
		fmt.Fprintf(out, "WINNER: %s\n", name)
	} else if w := st.Evaluation.Winner; w != nil {
		fmt.Fprintf(out, "WINNER: %s (not locked, run 'adlift conclude %d')\n", w.VariantName, test.ID)
	}

	if len(st.Warnings) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Warnings:")
		for _, w := range st.Warnings {
			fmt.Fprintf(out, "  [%s] %s\n", w.Severity, w.Message)
			if w.Action != "" {
				fmt.Fprintf(out, "      → %s\n", w.Action)
			}
		}
	}
}
