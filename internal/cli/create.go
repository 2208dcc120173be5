package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/store"
)

func newCreateCmd() *cobra.Command {
	var (
		variants   []string
		control    string
		dimension  string
		confidence float64
		minSamples int64
		start      string
		end        string
		offerID    int64
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new A/B test",
		Long: `Create a new A/B test in draft status.

Each --variant is NAME=CAMPAIGN_IDS, optionally NAME|LABEL=CAMPAIGN_IDS.
The first variant is the control unless --control names another one.

Examples:
  adlift create hero --variant "A=101" --variant "B=102,103"
  adlift create bidding --dimension strategy --confidence 0.99 \
      --variant "Manual CPC|current bidding=201" --variant "tCPA=202" --min-samples 300`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(variants) < 2 {
				return fmt.Errorf("need at least 2 variants. Example: --variant \"A=101\" --variant \"B=102\"")
			}

			nt := store.NewTest{
				Name:            args[0],
				Dimension:       dimension,
				ConfidenceLevel: confidence,
				MinSampleSize:   minSamples,
			}
			if offerID > 0 {
				nt.OfferID = &offerID
			}

			startDate := time.Now().UTC()
			if start != "" {
				parsed, err := time.Parse(store.DateLayout, start)
				if err != nil {
					return fmt.Errorf("invalid --start %q: want YYYY-MM-DD", start)
				}
				startDate = parsed
			}
			nt.StartDate = startDate

			if end != "" {
				parsed, err := time.Parse(store.DateLayout, end)
				if err != nil {
					return fmt.Errorf("invalid --end %q: want YYYY-MM-DD", end)
				}
				nt.EndDate = &parsed
			}

			for i, raw := range variants {
				v, err := parseVariant(raw)
				if err != nil {
					return err
				}
				if control == "" {
					v.IsControl = i == 0
				} else {
					v.IsControl = v.Name == control
				}
				nt.Variants = append(nt.Variants, v)
			}

			return withStore(func(s *store.SQLiteStore) error {
				test, created, err := s.CreateTest(context.Background(), nt)
				if err != nil {
					return fmt.Errorf("failed to create test: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created test '%s' (id %d, %s, primary metric %s) with %d variants:\n",
					test.Name, test.ID, test.Dimension, test.Dimension.Primary(), len(created))
				for _, v := range created {
					role := ""
					if v.IsControl {
						role = " (control)"
					}
					fmt.Fprintf(out, "  %d: %s%s campaigns %v\n", v.ID, v.Name, role, v.CampaignIDs)
				}
				fmt.Fprintf(out, "\nStart it with: adlift start %d\n", test.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&variants, "variant", nil, "variant as NAME[|LABEL]=CAMPAIGN_IDS (repeat, at least 2)")
	cmd.Flags().StringVar(&control, "control", "", "name of the control variant (default: first)")
	cmd.Flags().StringVar(&dimension, "dimension", "creative", "what the test varies: creative (clicks) or strategy (conversions)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.95, "confidence level: 0.90, 0.95 or 0.99")
	cmd.Flags().Int64Var(&minSamples, "min-samples", 1000, "minimum sample size per variant")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD (optional)")
	cmd.Flags().Int64Var(&offerID, "offer", 0, "offer id (optional)")
	cmd.MarkFlagRequired("variant")

	return cmd
}

// parseVariant reads NAME[|LABEL]=ID,ID,...
func parseVariant(raw string) (store.NewVariant, error) {
	head, ids, ok := strings.Cut(raw, "=")
	if !ok {
		return store.NewVariant{}, fmt.Errorf("invalid variant %q: want NAME=CAMPAIGN_IDS", raw)
	}

	name, label, _ := strings.Cut(head, "|")
	v := store.NewVariant{
		Name:  strings.TrimSpace(name),
		Label: strings.TrimSpace(label),
	}

	for _, part := range strings.Split(ids, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return store.NewVariant{}, fmt.Errorf("invalid campaign id %q in variant %q", part, v.Name)
		}
		v.CampaignIDs = append(v.CampaignIDs, id)
	}
	return v, nil
}
