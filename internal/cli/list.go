package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/store"
)

func newListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tests",
		Long:  `List all A/B tests with their status and totals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				var (
					tests []*store.ABTest
					err   error
				)
				if status != "" {
					parsed, parseErr := store.ParseTestStatus(status)
					if parseErr != nil {
						return parseErr
					}
					tests, err = s.ListTestsByStatus(ctx, parsed)
				} else {
					tests, err = s.ListTests(ctx)
				}
				if err != nil {
					return fmt.Errorf("failed to list tests: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(tests) == 0 {
					fmt.Fprintln(out, "No tests yet.")
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Create one with:")
					fmt.Fprintln(out, `  adlift create hero --variant "A=101" --variant "B=102"`)
					return nil
				}

				eng, cleanup, err := newEngine(ctx, s)
				if err != nil {
					return err
				}
				defer cleanup()

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tDIMENSION\tSTATUS\tVARIANTS\tCLICKS\tCONVERSIONS\tSTARTED")

				for _, test := range tests {
					ev, err := eng.Results(ctx, test.ID)
					if err != nil {
						return fmt.Errorf("failed to evaluate test %s: %w", test.Name, err)
					}

					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
						test.ID,
						test.Name,
						test.Dimension,
						strings.ToUpper(string(test.Status)),
						len(ev.Variants),
						formatNumber(ev.Totals.Clicks),
						formatNumber(ev.Totals.Conversions),
						test.StartDate.UTC().Format(store.DateLayout),
					)
				}

				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only list tests with this status")
	return cmd
}
