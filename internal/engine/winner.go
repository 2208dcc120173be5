package engine

import "github.com/headline-goat/adlift/internal/stats"

// Candidate is a non-control variant with its test result against the
// control. HasResult is false when the z-test had insufficient data.
type Candidate struct {
	VariantID    int64
	Name         string
	Snapshot     Snapshot
	Significance stats.Significance
	HasResult    bool
}

// Winner is the variant locked in by SelectWinner.
type Winner struct {
	VariantID   int64
	VariantName string
	Lift        float64 // percent over control, valid only when HasLift
	HasLift     bool
	PValue      float64
	Z           float64
}

// Qualifies reports whether a candidate beats the control: significant,
// a higher conversion rate, and at least minSampleSize clicks of its own.
func Qualifies(control Snapshot, c Candidate, minSampleSize int64) bool {
	return c.HasResult &&
		c.Significance.IsSignificant &&
		c.Snapshot.ConversionRate() > control.ConversionRate() &&
		c.Snapshot.Clicks >= minSampleSize
}

// SelectWinner returns the first qualifying candidate in the given order,
// or nil.
func SelectWinner(control Snapshot, candidates []Candidate, minSampleSize int64) *Winner {
	for _, c := range candidates {
		if !Qualifies(control, c, minSampleSize) {
			continue
		}
		lift, ok := Lift(control.ConversionRate(), c.Snapshot.ConversionRate())
		return &Winner{
			VariantID:   c.VariantID,
			VariantName: c.Name,
			Lift:        lift,
			HasLift:     ok,
			PValue:      c.Significance.PValue,
			Z:           c.Significance.Z,
		}
	}
	return nil
}

// HasEnoughData is true once total clicks reach minSampleSize per variant.
func HasEnoughData(totalClicks, minSampleSize int64, variantCount int) bool {
	return totalClicks >= minSampleSize*int64(variantCount)
}

// Lift is the relative change of variantRate over controlRate in percent.
// It is undefined when the control rate is zero.
func Lift(controlRate, variantRate float64) (float64, bool) {
	if controlRate == 0 {
		return 0, false
	}
	return (variantRate - controlRate) / controlRate * 100, true
}
