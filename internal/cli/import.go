package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/headline-goat/adlift/internal/store"
)

func newImportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import daily campaign performance",
		Long: `Append daily campaign performance rows to the ledger.

Rows carry campaign_id, date (YYYY-MM-DD), impressions, clicks,
conversions and cost. Missing counters read as zero. The format is taken
from the file extension unless --format is set; use - for stdin.

Examples:
  adlift import performance.csv
  adlift import - --format json < performance.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			var (
				data []byte
				err  error
			)
			if path == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(path)
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
			}

			var records []map[string]any
			switch format {
			case "json":
				records, err = decodeJSONRecords(data)
			case "csv":
				records, err = decodeCSVRecords(data)
			default:
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}
			if err != nil {
				return err
			}

			rows := make([]store.LedgerRow, 0, len(records))
			for i, rec := range records {
				row, err := store.RecordFromMap(rec)
				if err != nil {
					return fmt.Errorf("record %d: %w", i+1, err)
				}
				rows = append(rows, row)
			}

			return withStore(func(s *store.SQLiteStore) error {
				if err := s.AppendPerformance(context.Background(), rows); err != nil {
					return fmt.Errorf("failed to import rows: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d performance rows\n", len(rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "input format (csv or json)")
	return cmd
}

func decodeJSONRecords(data []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("invalid JSON: want an array of objects: %w", err)
	}
	return records, nil
}

func decodeCSVRecords(data []byte) ([]map[string]any, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var records []map[string]any
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid CSV: %w", err)
		}

		rec := make(map[string]any, len(header))
		for i, key := range header {
			if i < len(fields) {
				rec[key] = fields[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
