package engine_test

import (
	"fmt"
	"time"

	"github.com/headline-goat/adlift/internal/stats"
	"github.com/headline-goat/adlift/internal/store"
)

var (
	startDate = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	evalTime  = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
)

func abTest(minSample int64) *store.ABTest {
	return &store.ABTest{
		ID:              1,
		Name:            "hero headline",
		Dimension:       store.DimensionCreative,
		Status:          store.StatusRunning,
		ConfidenceLevel: stats.Confidence95,
		MinSampleSize:   minSample,
		StartDate:       startDate,
		UpdatedAt:       startDate,
	}
}

// variantsFor builds variants in stored order; the first is the control
// and variant i is linked to campaign 100+i.
func variantsFor(names ...string) []store.Variant {
	vs := make([]store.Variant, len(names))
	for i, name := range names {
		vs[i] = store.Variant{
			ID:          int64(i + 1),
			TestID:      1,
			Position:    i,
			Name:        name,
			Label:       fmt.Sprintf("%s label", name),
			IsControl:   i == 0,
			CampaignIDs: []int64{int64(100 + i)},
			Status:      "active",
		}
	}
	return vs
}

func perf(campaignID, clicks, conversions int64) store.LedgerRow {
	return store.LedgerRow{
		CampaignID:  campaignID,
		Date:        startDate,
		Impressions: clicks * 10,
		Clicks:      clicks,
		Conversions: conversions,
		Cost:        float64(clicks) * 0.5,
	}
}
