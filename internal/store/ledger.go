package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RecordFromMap converts an untyped ledger record (decoded JSON, a CSV row
// keyed by header) into a LedgerRow. campaign_id and date are required;
// absent or empty counters default to 0.
func RecordFromMap(rec map[string]any) (LedgerRow, error) {
	var row LedgerRow

	id, ok, err := intField(rec, "campaign_id")
	if err != nil {
		return row, err
	}
	if !ok || id <= 0 {
		return row, fmt.Errorf("campaign_id is required")
	}
	row.CampaignID = id

	rawDate, _ := rec["date"].(string)
	if rawDate == "" {
		return row, fmt.Errorf("date is required")
	}
	day, err := time.Parse(DateLayout, strings.TrimSpace(rawDate))
	if err != nil {
		return row, fmt.Errorf("date %q: want YYYY-MM-DD", rawDate)
	}
	row.Date = day

	for _, f := range []struct {
		key string
		dst *int64
	}{
		{"impressions", &row.Impressions},
		{"clicks", &row.Clicks},
		{"conversions", &row.Conversions},
	} {
		v, _, err := intField(rec, f.key)
		if err != nil {
			return row, err
		}
		if v < 0 {
			return row, fmt.Errorf("%s must not be negative", f.key)
		}
		*f.dst = v
	}

	cost, _, err := floatField(rec, "cost")
	if err != nil {
		return row, err
	}
	if cost < 0 {
		return row, fmt.Errorf("cost must not be negative")
	}
	row.Cost = cost

	return row, nil
}

func floatField(rec map[string]any, key string) (float64, bool, error) {
	raw, present := rec[key]
	if !present || raw == nil {
		return 0, false, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%s: %w", key, err)
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%s: %q is not a number", key, v)
		}
		f = parsed
	default:
		return 0, false, fmt.Errorf("%s: unsupported type %T", key, raw)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%s: not a finite number", key)
	}
	return f, true, nil
}

func intField(rec map[string]any, key string) (int64, bool, error) {
	f, ok, err := floatField(rec, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != math.Trunc(f) {
		return 0, false, fmt.Errorf("%s: %v is not a whole number", key, f)
	}
	return int64(f), true, nil
}
