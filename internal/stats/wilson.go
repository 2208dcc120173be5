package stats

import "math"

// WilsonInterval calculates the Wilson score confidence interval
// for a binomial proportion. It's more accurate for small samples
// than the normal approximation.
func WilsonInterval(successes, trials int64, level ConfidenceLevel) (lower, upper float64) {
	if trials <= 0 {
		return 0, 0
	}

	z := level.CriticalZ()
	p := clamp01(float64(successes) / float64(trials))
	n := float64(trials)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	return clamp01(center - spread), clamp01(center + spread)
}
