package engine

import (
	"time"

	"github.com/headline-goat/adlift/internal/stats"
	"github.com/headline-goat/adlift/internal/store"
)

// Comparison is a variant's z-test against the control plus its lift.
type Comparison struct {
	stats.Significance
	Lift    float64
	HasLift bool
}

type VariantResult struct {
	Variant     store.Variant
	Performance Snapshot
	WilsonLower float64 // interval for the variant's own conversion rate
	WilsonUpper float64
	Daily       DailySpread // primary metric per day of the window
	VsControl   *Comparison // nil for the control and on insufficient data
	IsWinner    bool
	Message     string
}

// Evaluation is the full statistical read of one test at one instant.
type Evaluation struct {
	Test           store.ABTest
	Window         Window
	Variants       []VariantResult
	HasControl     bool
	Totals         Snapshot
	HasEnoughData  bool
	Winner         *Winner
	Recommendation string
	Message        string
}

// ControlIndex returns the position of the control variant, or -1.
func ControlIndex(variants []store.Variant) int {
	for i, v := range variants {
		if v.IsControl {
			return i
		}
	}
	return -1
}

// Evaluate runs the pipeline aggregate -> z-test -> winner -> recommendation
// over already loaded rows. Variants must be in stored order.
func Evaluate(test *store.ABTest, variants []store.Variant, rows []store.LedgerRow, now time.Time) *Evaluation {
	window := ActiveWindow(test, now)
	snaps := Aggregate(variants, rows, window)
	daily := Daily(variants, rows, window, test.Dimension.Primary())

	ev := &Evaluation{
		Test:     *test,
		Window:   window,
		Variants: make([]VariantResult, len(variants)),
	}
	for i, v := range variants {
		lower, upper := stats.WilsonInterval(snaps[i].Conversions, snaps[i].Clicks, test.ConfidenceLevel)
		ev.Variants[i] = VariantResult{
			Variant:     v,
			Performance: snaps[i],
			WilsonLower: lower,
			WilsonUpper: upper,
			Daily:       daily[i],
		}
		ev.Totals.Add(snaps[i])
	}

	ci := ControlIndex(variants)
	if ci < 0 {
		ev.Message = MessageNoControl
		ev.Recommendation = MessageNoControl
		return ev
	}
	ev.HasControl = true
	control := snaps[ci]

	candidates := make([]Candidate, 0, len(variants)-1)
	for i, v := range variants {
		if i == ci {
			continue
		}
		c := Candidate{VariantID: v.ID, Name: v.Name, Snapshot: snaps[i]}
		c.Significance, c.HasResult = stats.TwoProportionZTest(
			control.Conversions, control.Clicks,
			snaps[i].Conversions, snaps[i].Clicks,
			test.ConfidenceLevel,
		)
		if c.HasResult {
			lift, ok := Lift(control.ConversionRate(), snaps[i].ConversionRate())
			ev.Variants[i].VsControl = &Comparison{Significance: c.Significance, Lift: lift, HasLift: ok}
		} else {
			ev.Variants[i].Message = MessageInsufficientData
		}
		candidates = append(candidates, c)
	}

	ev.Winner = SelectWinner(control, candidates, test.MinSampleSize)
	if ev.Winner != nil {
		for i := range ev.Variants {
			if ev.Variants[i].Variant.ID == ev.Winner.VariantID {
				ev.Variants[i].IsWinner = true
			}
		}
	}

	target := test.MinSampleSize * int64(len(variants))
	ev.HasEnoughData = HasEnoughData(ev.Totals.Clicks, test.MinSampleSize, len(variants))
	ev.Recommendation = Recommend(ev.Winner, ev.HasEnoughData, ev.Totals.Clicks, target)
	return ev
}

// Result returns the variant's entry by ID.
func (ev *Evaluation) Result(variantID int64) (VariantResult, bool) {
	for _, r := range ev.Variants {
		if r.Variant.ID == variantID {
			return r, true
		}
	}
	return VariantResult{}, false
}
