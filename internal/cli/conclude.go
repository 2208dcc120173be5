package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/store"
)

func newConcludeCmd() *cobra.Command {
	var (
		variantRef string
		noWinner   bool
		pick       bool
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "conclude <test>",
		Short: "Conclude a test and lock its winner",
		Long: `Conclude an A/B test. By default the computed winner is locked, or the
test is concluded without a winner when none qualifies.

Use --variant to lock a specific variant, --pick to choose one
interactively, or --no-winner to stop the test without a winner.

Examples:
  adlift conclude hero
  adlift conclude hero --variant B --yes
  adlift conclude bidding --no-winner`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noWinner && (variantRef != "" || pick) {
				return fmt.Errorf("--no-winner cannot be combined with --variant or --pick")
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()
				out := cmd.OutOrStdout()

				test, err := findTest(ctx, s, args[0])
				if err != nil {
					return err
				}
				if test.Status == store.StatusConcluded {
					fmt.Fprintf(out, "Test '%s' is already concluded.\n", test.Name)
					return nil
				}

				variants, err := s.ListVariants(ctx, test.ID)
				if err != nil {
					return fmt.Errorf("failed to list variants: %w", err)
				}

				req := engine.ConcludeRequest{NoWinner: noWinner, Reason: "manual"}
				switch {
				case pick:
					v, err := pickVariant(variants)
					if err != nil {
						return err
					}
					req.WinnerVariantID = &v.ID
				case variantRef != "":
					v, err := findVariant(variants, variantRef)
					if err != nil {
						return err
					}
					req.WinnerVariantID = &v.ID
				}

				if !yes {
					ok, err := confirm(fmt.Sprintf("Conclude test '%s'", test.Name))
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(out, "Aborted.")
						return nil
					}
				}

				eng, cleanup, err := newEngine(ctx, s)
				if err != nil {
					return err
				}
				defer cleanup()

				res, err := eng.Conclude(ctx, test.ID, req)
				if err != nil {
					return fmt.Errorf("failed to conclude test: %w", err)
				}

				if !res.Changed {
					fmt.Fprintf(out, "Test '%s' was already concluded.\n", test.Name)
					return nil
				}
				if res.Test.WinnerVariantID == nil {
					fmt.Fprintf(out, "Concluded test '%s' without a winner.\n", test.Name)
					return nil
				}

				name := fmt.Sprintf("variant %d", *res.Test.WinnerVariantID)
				for _, v := range variants {
					if v.ID == *res.Test.WinnerVariantID {
						name = v.Name
					}
				}
				fmt.Fprintf(out, "Concluded test '%s': winner is \"%s\"", test.Name, name)
				if res.Test.StatisticalConfidence != nil {
					fmt.Fprintf(out, " (%.2f%% confidence)", *res.Test.StatisticalConfidence*100)
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&variantRef, "variant", "v", "", "winning variant, by name or id")
	cmd.Flags().BoolVar(&noWinner, "no-winner", false, "conclude without a winner")
	cmd.Flags().BoolVar(&pick, "pick", false, "choose the winning variant interactively")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func findVariant(variants []store.Variant, ref string) (store.Variant, error) {
	id, idErr := strconv.ParseInt(ref, 10, 64)
	for _, v := range variants {
		if v.Name == ref || (idErr == nil && v.ID == id) {
			return v, nil
		}
	}
	return store.Variant{}, fmt.Errorf("variant '%s' is not part of this test", ref)
}

func pickVariant(variants []store.Variant) (store.Variant, error) {
	items := make([]string, len(variants))
	for i, v := range variants {
		items[i] = v.Name
		if v.Label != "" {
			items[i] += " (" + v.Label + ")"
		}
		if v.IsControl {
			items[i] += " [control]"
		}
	}

	prompt := promptui.Select{
		Label: "Select winning variant",
		Items: items,
		Size:  len(items),
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return store.Variant{}, err
	}
	return variants[idx], nil
}

func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if err == promptui.ErrInterrupt {
			os.Exit(0)
		}
		return false, err
	}
	return true, nil
}
