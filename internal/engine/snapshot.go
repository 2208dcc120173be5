package engine

import "github.com/headline-goat/adlift/internal/store"

// Snapshot is the summed performance of one variant over a window.
type Snapshot struct {
	Impressions int64
	Clicks      int64
	Conversions int64
	Cost        float64
}

func (s *Snapshot) Add(o Snapshot) {
	s.Impressions += o.Impressions
	s.Clicks += o.Clicks
	s.Conversions += o.Conversions
	s.Cost += o.Cost
}

// CTR is clicks per impression as a percentage.
func (s Snapshot) CTR() float64 {
	if s.Impressions == 0 {
		return 0
	}
	return float64(s.Clicks) / float64(s.Impressions) * 100
}

// ConversionRate is conversions per click as a percentage.
func (s Snapshot) ConversionRate() float64 {
	if s.Clicks == 0 {
		return 0
	}
	return float64(s.Conversions) / float64(s.Clicks) * 100
}

// CPA is cost per conversion.
func (s Snapshot) CPA() float64 {
	if s.Conversions == 0 {
		return 0
	}
	return s.Cost / float64(s.Conversions)
}

// CPC is cost per click.
func (s Snapshot) CPC() float64 {
	if s.Clicks == 0 {
		return 0
	}
	return s.Cost / float64(s.Clicks)
}

// Primary returns the counter a dimension samples on.
func (s Snapshot) Primary(m store.Metric) int64 {
	if m == store.MetricConversions {
		return s.Conversions
	}
	return s.Clicks
}

// PrimaryRate is the rate matching the primary counter: CTR for clicks,
// conversion rate for conversions.
func (s Snapshot) PrimaryRate(m store.Metric) float64 {
	if m == store.MetricConversions {
		return s.ConversionRate()
	}
	return s.CTR()
}
