package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/store"
)

func newExportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <test>",
		Short: "Export the ledger rows behind a test",
		Long: `Export the daily performance rows of a test's campaigns inside its
active window, in CSV or JSON format.

Examples:
  adlift export hero --format csv > hero-data.csv
  adlift export hero --format json > hero-data.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}

			return withStore(func(s *store.SQLiteStore) error {
				ctx := context.Background()

				test, err := findTest(ctx, s, args[0])
				if err != nil {
					return err
				}

				variants, err := s.ListVariants(ctx, test.ID)
				if err != nil {
					return fmt.Errorf("failed to list variants: %w", err)
				}

				var rows []store.LedgerRow
				if w := engine.ActiveWindow(test, time.Now()); !w.Empty() {
					rows, err = s.PerformanceRows(ctx, engine.CampaignIDs(variants), w.From, w.To)
					if err != nil {
						return fmt.Errorf("failed to load performance: %w", err)
					}
				}

				if format == "csv" {
					return exportCSV(cmd.OutOrStdout(), rows)
				}
				return exportJSON(cmd.OutOrStdout(), test, rows)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv or json)")
	return cmd
}

func exportCSV(out io.Writer, rows []store.LedgerRow) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"campaign_id", "date", "impressions", "clicks", "conversions", "cost"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.CampaignID, 10),
			r.Date.Format(store.DateLayout),
			strconv.FormatInt(r.Impressions, 10),
			strconv.FormatInt(r.Clicks, 10),
			strconv.FormatInt(r.Conversions, 10),
			strconv.FormatFloat(r.Cost, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	TestID int64     `json:"test_id"`
	Test   string    `json:"test"`
	Rows   []jsonRow `json:"rows"`
}

type jsonRow struct {
	CampaignID  int64   `json:"campaign_id"`
	Date        string  `json:"date"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Cost        float64 `json:"cost"`
}

func exportJSON(out io.Writer, test *store.ABTest, rows []store.LedgerRow) error {
	export := jsonExport{
		TestID: test.ID,
		Test:   test.Name,
		Rows:   make([]jsonRow, len(rows)),
	}

	for i, r := range rows {
		export.Rows[i] = jsonRow{
			CampaignID:  r.CampaignID,
			Date:        r.Date.Format(store.DateLayout),
			Impressions: r.Impressions,
			Clicks:      r.Clicks,
			Conversions: r.Conversions,
			Cost:        r.Cost,
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
