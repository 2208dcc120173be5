package store

import (
	"fmt"
	"time"

	"github.com/headline-goat/adlift/internal/stats"
)

type TestStatus string

const (
	StatusDraft     TestStatus = "draft"
	StatusRunning   TestStatus = "running"
	StatusPaused    TestStatus = "paused"
	StatusConcluded TestStatus = "concluded"
)

func ParseTestStatus(s string) (TestStatus, error) {
	switch TestStatus(s) {
	case StatusDraft, StatusRunning, StatusPaused, StatusConcluded:
		return TestStatus(s), nil
	}
	return "", fmt.Errorf("unknown test status %q", s)
}

// Metric names the counter a dimension treats as its sample unit.
type Metric int

const (
	MetricClicks Metric = iota
	MetricConversions
)

func (m Metric) String() string {
	if m == MetricConversions {
		return "conversions"
	}
	return "clicks"
}

// Dimension is what a test varies. Each dimension carries its primary
// metric so callers never dispatch on the name.
type Dimension struct {
	name    string
	primary Metric
}

var (
	DimensionCreative = Dimension{name: "creative", primary: MetricClicks}
	DimensionStrategy = Dimension{name: "strategy", primary: MetricConversions}
)

func ParseDimension(s string) (Dimension, error) {
	switch s {
	case DimensionCreative.name:
		return DimensionCreative, nil
	case DimensionStrategy.name:
		return DimensionStrategy, nil
	}
	return Dimension{}, fmt.Errorf("unknown test dimension %q", s)
}

func (d Dimension) String() string  { return d.name }
func (d Dimension) Primary() Metric { return d.primary }

func (d Dimension) MarshalText() ([]byte, error) {
	return []byte(d.name), nil
}

func (d *Dimension) UnmarshalText(b []byte) error {
	parsed, err := ParseDimension(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type ABTest struct {
	ID                    int64
	Name                  string
	Dimension             Dimension
	Status                TestStatus
	ConfidenceLevel       stats.ConfidenceLevel
	MinSampleSize         int64
	OfferID               *int64
	StartDate             time.Time
	EndDate               *time.Time
	WinnerVariantID       *int64
	StatisticalConfidence *float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Variant struct {
	ID          int64
	TestID      int64
	Position    int
	Name        string
	Label       string
	IsControl   bool
	CampaignIDs []int64 // Decoded from JSON
	Status      string
}

// NewTest holds the fields needed to create a test and its variants.
type NewTest struct {
	Name            string `validate:"required,max=200"`
	Dimension       string `validate:"required,oneof=creative strategy"`
	ConfidenceLevel float64
	MinSampleSize   int64 `validate:"gt=0"`
	OfferID         *int64
	StartDate       time.Time `validate:"required"`
	EndDate         *time.Time
	Variants        []NewVariant `validate:"min=2,dive"`
}

type NewVariant struct {
	Name        string `validate:"required,max=100"`
	Label       string
	IsControl   bool
	CampaignIDs []int64 `validate:"min=1,dive,gt=0"`
}

// LedgerRow is one day of performance for one campaign.
type LedgerRow struct {
	CampaignID  int64
	Date        time.Time // UTC midnight
	Impressions int64
	Clicks      int64
	Conversions int64
	Cost        float64
}

const DateLayout = "2006-01-02"
