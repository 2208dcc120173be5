package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/store"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <test>",
		Short: "Start or resume a test",
		Long: `Move a draft or paused test to running. Only running tests are
checked by the monitor.

Example:
  adlift start hero`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(cmd, args[0], []store.TestStatus{store.StatusDraft, store.StatusPaused}, store.StatusRunning)
		},
	}
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <test>",
		Short: "Pause a running test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(cmd, args[0], []store.TestStatus{store.StatusRunning}, store.StatusPaused)
		},
	}
}

func transition(cmd *cobra.Command, ref string, from []store.TestStatus, to store.TestStatus) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		test, err := findTest(ctx, s, ref)
		if err != nil {
			return err
		}

		if err := s.SetStatus(ctx, test.ID, from, to); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				return fmt.Errorf("cannot move test '%s' from %s to %s", test.Name, test.Status, to)
			}
			return fmt.Errorf("failed to update test: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Test '%s' is now %s\n", test.Name, to)
		return nil
	})
}
