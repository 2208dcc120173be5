package stats

import (
	"fmt"
	"math"
)

// ConfidenceLevel is one of the supported two-tailed confidence levels.
type ConfidenceLevel float64

const (
	Confidence90 ConfidenceLevel = 0.90
	Confidence95 ConfidenceLevel = 0.95
	Confidence99 ConfidenceLevel = 0.99
)

// ParseConfidenceLevel accepts only 0.90, 0.95 and 0.99.
func ParseConfidenceLevel(v float64) (ConfidenceLevel, error) {
	switch ConfidenceLevel(v) {
	case Confidence90, Confidence95, Confidence99:
		return ConfidenceLevel(v), nil
	}
	return 0, fmt.Errorf("unsupported confidence level %v (want 0.90, 0.95 or 0.99)", v)
}

// Alpha is the significance threshold, 1 - level.
func (c ConfidenceLevel) Alpha() float64 {
	return 1 - float64(c)
}

// CriticalZ returns the two-tailed critical value for the level.
//   - 0.90 -> 1.645
//   - 0.95 -> 1.96
//   - 0.99 -> 2.576
func (c ConfidenceLevel) CriticalZ() float64 {
	switch c {
	case Confidence99:
		return 2.576
	case Confidence90:
		return 1.645
	default:
		return 1.96
	}
}

// Significance is the outcome of a two-proportion z-test of a variant
// against the control.
type Significance struct {
	Z             float64
	PValue        float64
	CILower       float64 // interval for the control's own rate
	CIUpper       float64
	IsSignificant bool
}

// TwoProportionZTest compares the control (x1/n1) with a variant (x2/n2).
// The second return value is false when there is not enough data to run the
// test: either side has zero trials or the pooled standard error is zero.
func TwoProportionZTest(controlConv, controlTrials, variantConv, variantTrials int64, level ConfidenceLevel) (Significance, bool) {
	if controlTrials <= 0 || variantTrials <= 0 {
		return Significance{}, false
	}

	n1 := float64(controlTrials)
	n2 := float64(variantTrials)
	p1 := float64(controlConv) / n1
	p2 := float64(variantConv) / n2

	// Pooled proportion under the null hypothesis (p1 = p2)
	pooled := float64(controlConv+variantConv) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 || math.IsNaN(se) {
		return Significance{}, false
	}

	z := (p1 - p2) / se
	pValue := clamp01(2 * NormalCDF(-math.Abs(z)))

	// conversions can exceed clicks in an ads ledger; keep the variance real
	pc := clamp01(p1)
	margin := level.CriticalZ() * math.Sqrt(pc*(1-pc)/n1)

	return Significance{
		Z:             z,
		PValue:        pValue,
		CILower:       clamp01(pc - margin),
		CIUpper:       clamp01(pc + margin),
		IsSignificant: pValue < level.Alpha(),
	}, true
}

// NormalCDF approximates the cumulative distribution function
// of the standard normal distribution.
func NormalCDF(x float64) float64 {
	// Abramowitz and Stegun, Handbook of Mathematical Functions,
	// formula 7.1.26 (|error| <= 1.5e-7)
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
