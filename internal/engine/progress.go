package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/headline-goat/adlift/internal/store"
)

// maxProjection caps the estimated completion date. Beyond it the
// projection is meaningless and would overflow time.Duration.
const maxProjection = 10 * 365 * 24 * time.Hour

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Warning struct {
	Type     string
	Message  string
	Severity Severity
	Action   string
}

type Progress struct {
	TotalSamples         int64
	MinSamplesRequired   int64
	CompletionPercentage float64
	EstimatedCompletion  *time.Time
	HoursRunning         float64
}

// Leader is the variant currently ahead. IsSignificant is false when no
// variant has beaten the control and the lead is by raw volume only.
type Leader struct {
	VariantID     int64
	Name          string
	Label         string
	PrimaryMetric store.Metric
	PrimaryValue  int64
	Lift          float64
	HasLift       bool
	Confidence    float64
	IsSignificant bool
}

// Status is the progress view of a test built on an Evaluation.
type Status struct {
	Evaluation      *Evaluation
	Progress        Progress
	CurrentLeader   *Leader
	Warnings        []Warning
	IsComplete      bool
	WinnerVariantID *int64
}

// TrackProgress measures how far the test is toward its sample target,
// who is leading, and which guardrails have tripped.
func TrackProgress(test *store.ABTest, ev *Evaluation, now time.Time) *Status {
	metric := test.Dimension.Primary()

	var total int64
	for _, r := range ev.Variants {
		total += r.Performance.Primary(metric)
	}

	p := Progress{
		TotalSamples:       total,
		MinSamplesRequired: test.MinSampleSize,
	}
	if test.MinSampleSize > 0 {
		p.CompletionPercentage = math.Min(100, float64(total)/float64(test.MinSampleSize)*100)
	}

	elapsed := now.Sub(test.StartDate)
	if elapsed > 0 {
		p.HoursRunning = elapsed.Hours()
	}
	if total > 0 && elapsed > 0 {
		projected := float64(elapsed) * float64(test.MinSampleSize) / float64(total)
		if projected <= float64(maxProjection) {
			eta := test.StartDate.Add(time.Duration(projected))
			p.EstimatedCompletion = &eta
		}
	}

	st := &Status{
		Evaluation:      ev,
		Progress:        p,
		CurrentLeader:   currentLeader(ev, metric),
		WinnerVariantID: test.WinnerVariantID,
	}
	if test.Status == store.StatusRunning || test.Status == store.StatusPaused {
		st.Warnings = warnings(test, ev, p, metric, now)
	}

	hasWinner := test.WinnerVariantID != nil || ev.Winner != nil
	st.IsComplete = hasWinner && (p.CompletionPercentage >= 100 || test.Status == store.StatusConcluded)
	return st
}

// currentLeader prefers the best variant that significantly beats the
// control. A variant significantly worse than the control is never a
// significant leader.
func currentLeader(ev *Evaluation, metric store.Metric) *Leader {
	var controlRate float64
	for _, r := range ev.Variants {
		if r.Variant.IsControl {
			controlRate = r.Performance.ConversionRate()
		}
	}

	var best *VariantResult
	for i := range ev.Variants {
		r := &ev.Variants[i]
		if r.Variant.IsControl || r.VsControl == nil || !r.VsControl.IsSignificant {
			continue
		}
		if r.Performance.ConversionRate() <= controlRate {
			continue
		}
		if best == nil || r.Performance.ConversionRate() > best.Performance.ConversionRate() {
			best = r
		}
	}
	if best != nil {
		return &Leader{
			VariantID:     best.Variant.ID,
			Name:          best.Variant.Name,
			Label:         best.Variant.Label,
			PrimaryMetric: metric,
			PrimaryValue:  best.Performance.Primary(metric),
			Lift:          best.VsControl.Lift,
			HasLift:       best.VsControl.HasLift,
			Confidence:    1 - best.VsControl.PValue,
			IsSignificant: true,
		}
	}

	for i := range ev.Variants {
		r := &ev.Variants[i]
		if r.Variant.IsControl {
			continue
		}
		if best == nil || r.Performance.Primary(metric) > best.Performance.Primary(metric) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	l := &Leader{
		VariantID:     best.Variant.ID,
		Name:          best.Variant.Name,
		Label:         best.Variant.Label,
		PrimaryMetric: metric,
		PrimaryValue:  best.Performance.Primary(metric),
	}
	if best.VsControl != nil {
		l.Lift = best.VsControl.Lift
		l.HasLift = best.VsControl.HasLift
	}
	return l
}

func warnings(test *store.ABTest, ev *Evaluation, p Progress, metric store.Metric, now time.Time) []Warning {
	var out []Warning
	minSamples := float64(test.MinSampleSize)

	if p.HoursRunning >= 24 && float64(ev.Totals.Impressions) < minSamples*0.1 {
		out = append(out, Warning{
			Type:     "low_traffic",
			Message:  fmt.Sprintf("Only %d impressions after %.0f hours", ev.Totals.Impressions, p.HoursRunning),
			Severity: SeverityHigh,
			Action:   "Check that the linked campaigns are active and have budget",
		})
	}

	if p.HoursRunning >= 48 && p.TotalSamples == 0 {
		out = append(out, Warning{
			Type:     "no_samples",
			Message:  fmt.Sprintf("No %s recorded after %.0f hours", metric, p.HoursRunning),
			Severity: SeverityCritical,
			Action:   "Verify campaign tracking and the performance ledger import",
		})
	}

	if p.HoursRunning >= 168 && p.CompletionPercentage < 25 {
		out = append(out, Warning{
			Type:     "underpowered",
			Message:  fmt.Sprintf("Only %.2f%% of the required sample after a week", p.CompletionPercentage),
			Severity: SeverityMedium,
			Action:   "Increase traffic or lower the minimum sample size",
		})
	}

	if test.EndDate != nil && p.TotalSamples < test.MinSampleSize {
		left := test.EndDate.Sub(now)
		if left > 0 && left <= 24*time.Hour {
			out = append(out, Warning{
				Type:     "time_running_out",
				Message:  fmt.Sprintf("Test ends in %.0f hours with %d of %d samples", left.Hours(), p.TotalSamples, test.MinSampleSize),
				Severity: SeverityMedium,
				Action:   "Extend the end date or accept an inconclusive result",
			})
		}
	}

	if first, second, ok := topTwoRates(ev, metric); ok && p.CompletionPercentage >= 50 {
		if (first-second)/first < 0.05 {
			out = append(out, Warning{
				Type:     "no_clear_leader",
				Message:  fmt.Sprintf("Top variants are within 5%% of each other (%.2f%% vs %.2f%%)", first, second),
				Severity: SeverityLow,
				Action:   "Variants perform alike; consider concluding without a winner",
			})
		}
	}

	return out
}

// topTwoRates returns the two highest primary rates when both are positive.
func topTwoRates(ev *Evaluation, metric store.Metric) (first, second float64, ok bool) {
	if len(ev.Variants) < 2 {
		return 0, 0, false
	}
	for _, r := range ev.Variants {
		rate := r.Performance.PrimaryRate(metric)
		switch {
		case rate > first:
			first, second = rate, first
		case rate > second:
			second = rate
		}
	}
	return first, second, first > 0 && second > 0
}
