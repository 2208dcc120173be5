package stats_test

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/headline-goat/adlift/internal/stats"
)

func TestTwoProportionZTest_NotSignificantAt95(t *testing.T) {
	// Control: 5% (50/1000), variant: 7% (70/1000)
	sig, ok := stats.TwoProportionZTest(50, 1000, 70, 1000, stats.Confidence95)
	if !ok {
		t.Fatal("expected a result")
	}

	if math.Abs(sig.Z-(-1.8831)) > 0.001 {
		t.Errorf("z = %f, want ~-1.8831", sig.Z)
	}
	if math.Abs(sig.PValue-0.0597) > 0.001 {
		t.Errorf("p-value = %f, want ~0.0597", sig.PValue)
	}
	if sig.IsSignificant {
		t.Error("expected result not to be significant at 95%")
	}
}

func TestTwoProportionZTest_SignificantAt95And99(t *testing.T) {
	// Control: 10% (100/1000), variant: 15% (150/1000)
	for _, level := range []stats.ConfidenceLevel{stats.Confidence95, stats.Confidence99} {
		sig, ok := stats.TwoProportionZTest(100, 1000, 150, 1000, level)
		if !ok {
			t.Fatalf("expected a result at %v", level)
		}
		if math.Abs(sig.Z-(-3.3806)) > 0.001 {
			t.Errorf("z = %f, want ~-3.3806", sig.Z)
		}
		if sig.PValue > 0.001 {
			t.Errorf("p-value = %f, want < 0.001", sig.PValue)
		}
		if !sig.IsSignificant {
			t.Errorf("expected significance at %v", level)
		}
	}
}

func TestTwoProportionZTest_ConfidenceIntervalForControl(t *testing.T) {
	tests := []struct {
		level        stats.ConfidenceLevel
		lower, upper float64
	}{
		{stats.Confidence95, 0.08141, 0.11859},
		{stats.Confidence99, 0.07556, 0.12444},
	}

	for _, tt := range tests {
		sig, ok := stats.TwoProportionZTest(100, 1000, 150, 1000, tt.level)
		if !ok {
			t.Fatalf("expected a result at %v", tt.level)
		}
		if math.Abs(sig.CILower-tt.lower) > 1e-4 || math.Abs(sig.CIUpper-tt.upper) > 1e-4 {
			t.Errorf("level %v: CI [%f, %f], want [%f, %f]", tt.level, sig.CILower, sig.CIUpper, tt.lower, tt.upper)
		}
	}
}

func TestTwoProportionZTest_OrderSymmetry(t *testing.T) {
	cases := [][4]int64{
		{50, 1000, 70, 1000},
		{100, 1000, 150, 1000},
		{3, 17, 9, 41},
		{0, 500, 12, 480},
	}

	for _, c := range cases {
		ab, okAB := stats.TwoProportionZTest(c[0], c[1], c[2], c[3], stats.Confidence95)
		ba, okBA := stats.TwoProportionZTest(c[2], c[3], c[0], c[1], stats.Confidence95)
		if !okAB || !okBA {
			t.Fatalf("%v: expected results in both directions", c)
		}
		if ab.Z != -ba.Z {
			t.Errorf("%v: z %v and %v are not negatives", c, ab.Z, ba.Z)
		}
		if ab.PValue != ba.PValue {
			t.Errorf("%v: p-values differ: %v vs %v", c, ab.PValue, ba.PValue)
		}
	}
}

func TestTwoProportionZTest_Deterministic(t *testing.T) {
	first, _ := stats.TwoProportionZTest(123, 4567, 150, 4321, stats.Confidence90)
	for i := 0; i < 100; i++ {
		again, _ := stats.TwoProportionZTest(123, 4567, 150, 4321, stats.Confidence90)
		if again != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestTwoProportionZTest_Bounds(t *testing.T) {
	cases := [][4]int64{
		{0, 10, 10, 10},
		{1, 1, 0, 1000},
		{500, 1000, 500, 1000},
		{999, 1000, 1, 1000},
		{15, 10, 0, 100}, // more conversions than clicks
	}

	for _, c := range cases {
		sig, ok := stats.TwoProportionZTest(c[0], c[1], c[2], c[3], stats.Confidence99)
		if !ok {
			continue
		}
		if sig.PValue < 0 || sig.PValue > 1 || math.IsNaN(sig.PValue) {
			t.Errorf("%v: p-value %v out of [0,1]", c, sig.PValue)
		}
		if sig.CILower > sig.CIUpper {
			t.Errorf("%v: CI lower %v > upper %v", c, sig.CILower, sig.CIUpper)
		}
		if sig.CILower < 0 || sig.CIUpper > 1 || math.IsNaN(sig.CILower) || math.IsNaN(sig.CIUpper) {
			t.Errorf("%v: CI [%v, %v] out of bounds", c, sig.CILower, sig.CIUpper)
		}
		if math.IsNaN(sig.Z) || math.IsInf(sig.Z, 0) {
			t.Errorf("%v: z is %v", c, sig.Z)
		}
	}
}

func TestTwoProportionZTest_EqualRatesHavePValueOne(t *testing.T) {
	sig, ok := stats.TwoProportionZTest(50, 1000, 50, 1000, stats.Confidence95)
	if !ok {
		t.Fatal("expected a result")
	}
	if sig.Z != 0 {
		t.Errorf("z = %v, want 0", sig.Z)
	}
	if sig.PValue != 1 {
		t.Errorf("p-value = %v, want 1 after clamping", sig.PValue)
	}
}

func TestTwoProportionZTest_InsufficientData(t *testing.T) {
	tests := []struct {
		name   string
		x1, n1 int64
		x2, n2 int64
	}{
		{"zero control trials", 0, 0, 10, 100},
		{"zero variant trials", 10, 100, 0, 0},
		{"both zero", 0, 0, 0, 0},
		{"both rates 0%", 0, 100, 0, 250},
		{"both rates 100%", 100, 100, 40, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := stats.TwoProportionZTest(tt.x1, tt.n1, tt.x2, tt.n2, stats.Confidence95); ok {
				t.Error("expected insufficient data")
			}
		})
	}
}

func TestNormalCDF_MatchesReference(t *testing.T) {
	for x := -6.0; x <= 6.0; x += 0.05 {
		got := stats.NormalCDF(x)
		want := distuv.UnitNormal.CDF(x)
		if math.Abs(got-want) > 1.5e-7 {
			t.Errorf("NormalCDF(%.2f) = %.10f, want %.10f", x, got, want)
		}
	}
}

func TestParseConfidenceLevel(t *testing.T) {
	for _, v := range []float64{0.90, 0.95, 0.99} {
		if _, err := stats.ParseConfidenceLevel(v); err != nil {
			t.Errorf("ParseConfidenceLevel(%v) failed: %v", v, err)
		}
	}
	for _, v := range []float64{0, 0.5, 0.8, 0.975, 1} {
		if _, err := stats.ParseConfidenceLevel(v); err == nil {
			t.Errorf("ParseConfidenceLevel(%v) should fail", v)
		}
	}
}

func TestCriticalZ(t *testing.T) {
	tests := []struct {
		level    stats.ConfidenceLevel
		expected float64
	}{
		{stats.Confidence90, 1.645},
		{stats.Confidence95, 1.96},
		{stats.Confidence99, 2.576},
	}

	for _, tt := range tests {
		if z := tt.level.CriticalZ(); z != tt.expected {
			t.Errorf("CriticalZ(%v) = %f, want %f", tt.level, z, tt.expected)
		}
	}
}
