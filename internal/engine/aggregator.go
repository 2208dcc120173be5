package engine

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/headline-goat/adlift/internal/store"
)

// Window is an inclusive range of ledger days.
type Window struct {
	From time.Time
	To   time.Time
}

// ActiveWindow is [start_date, min(end_date, now)] truncated to days.
func ActiveWindow(test *store.ABTest, now time.Time) Window {
	to := now
	if test.EndDate != nil && test.EndDate.Before(now) {
		to = *test.EndDate
	}
	return Window{From: truncateDay(test.StartDate), To: truncateDay(to)}
}

// Empty reports whether the window contains no days, as for a test
// whose start date is still in the future.
func (w Window) Empty() bool {
	return w.To.Before(w.From)
}

func (w Window) Contains(day time.Time) bool {
	d := truncateDay(day)
	return !d.Before(w.From) && !d.After(w.To)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CampaignIDs returns the distinct campaigns linked to any of the variants.
func CampaignIDs(variants []store.Variant) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, v := range variants {
		for _, id := range v.CampaignIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// campaignOwners maps each campaign to the positions of the variants it
// is linked to. Duplicate links within one variant count once.
func campaignOwners(variants []store.Variant) map[int64][]int {
	owners := make(map[int64][]int)
	for i, v := range variants {
		linked := make(map[int64]bool, len(v.CampaignIDs))
		for _, id := range v.CampaignIDs {
			if linked[id] {
				continue
			}
			linked[id] = true
			owners[id] = append(owners[id], i)
		}
	}
	return owners
}

// Aggregate sums the ledger rows inside the window into one snapshot per
// variant, in the order the variants are given. A campaign linked to
// several variants counts toward each of them.
func Aggregate(variants []store.Variant, rows []store.LedgerRow, w Window) []Snapshot {
	snaps := make([]Snapshot, len(variants))
	if w.Empty() {
		return snaps
	}

	owners := campaignOwners(variants)
	for _, row := range rows {
		if !w.Contains(row.Date) {
			continue
		}
		for _, i := range owners[row.CampaignID] {
			snaps[i].Impressions += row.Impressions
			snaps[i].Clicks += row.Clicks
			snaps[i].Conversions += row.Conversions
			snaps[i].Cost += row.Cost
		}
	}
	return snaps
}

// DailySpread describes how a variant's primary metric is spread over the
// days of the window.
type DailySpread struct {
	Days   int
	Mean   float64
	StdDev float64
}

// Daily computes the per-day mean and population standard deviation of the
// primary metric for each variant. Days without rows count as zero.
func Daily(variants []store.Variant, rows []store.LedgerRow, w Window, metric store.Metric) []DailySpread {
	out := make([]DailySpread, len(variants))
	if w.Empty() {
		return out
	}

	days := int(w.To.Sub(w.From)/(24*time.Hour)) + 1
	series := make([]stats.Float64Data, len(variants))
	for i := range series {
		series[i] = make(stats.Float64Data, days)
	}

	owners := campaignOwners(variants)
	for _, row := range rows {
		if !w.Contains(row.Date) {
			continue
		}
		d := int(truncateDay(row.Date).Sub(w.From) / (24 * time.Hour))
		v := Snapshot{Clicks: row.Clicks, Conversions: row.Conversions}.Primary(metric)
		for _, i := range owners[row.CampaignID] {
			series[i][d] += float64(v)
		}
	}

	for i, data := range series {
		out[i].Days = days
		// Mean and StandardDeviation only fail on empty input
		out[i].Mean, _ = stats.Mean(data)
		out[i].StdDev, _ = stats.StandardDeviation(data)
	}
	return out
}
