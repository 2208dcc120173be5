package store

import (
	"context"
	"time"
)

// Store defines the interface for test configuration and ledger operations
type Store interface {
	// Test operations
	CreateTest(ctx context.Context, nt NewTest) (*ABTest, []Variant, error)
	GetTest(ctx context.Context, id int64) (*ABTest, error)
	ListTests(ctx context.Context) ([]*ABTest, error)
	ListTestsByStatus(ctx context.Context, status TestStatus) ([]*ABTest, error)
	ListVariants(ctx context.Context, testID int64) ([]Variant, error)
	SetStatus(ctx context.Context, id int64, from []TestStatus, to TestStatus) error
	ConcludeTest(ctx context.Context, id int64, c Conclusion) (bool, error)

	// Ledger operations
	AppendPerformance(ctx context.Context, rows []LedgerRow) error
	PerformanceRows(ctx context.Context, campaignIDs []int64, from, to time.Time) ([]LedgerRow, error)

	// Lifecycle
	Close() error
}

// Conclusion is what gets locked when a test moves to concluded.
type Conclusion struct {
	WinnerVariantID       *int64
	StatisticalConfidence *float64
	At                    time.Time
}
