// Package monitor periodically sweeps running tests, concluding those that
// have a winner or have passed their end date.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/store"
)

type TestLister interface {
	ListTestsByStatus(ctx context.Context, status store.TestStatus) ([]*store.ABTest, error)
}

const (
	ReasonWinner  = "winner"
	ReasonEndDate = "end_date"
)

// Outcome is what one sweep did with one test.
type Outcome struct {
	TestID          int64
	TestName        string
	Concluded       bool
	Reason          string
	WinnerVariantID *int64
	Warnings        []engine.Warning
	Err             error
}

type Monitor struct {
	tests       TestLister
	engine      *engine.Engine
	logger      *slog.Logger
	concurrency int
}

func New(tests TestLister, eng *engine.Engine, logger *slog.Logger, concurrency int) *Monitor {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{tests: tests, engine: eng, logger: logger, concurrency: concurrency}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error("monitor sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce checks every running test once. A failure on one test is
// recorded in its Outcome and does not stop the others.
func (m *Monitor) RunOnce(ctx context.Context) ([]Outcome, error) {
	tests, err := m.tests.ListTestsByStatus(ctx, store.StatusRunning)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(tests))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, test := range tests {
		i, test := i, test
		g.Go(func() error {
			outcomes[i] = m.check(gCtx, test)
			return gCtx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}

	concluded := 0
	for _, o := range outcomes {
		if o.Concluded {
			concluded++
		}
	}
	m.logger.Info("monitor sweep finished", "running", len(tests), "concluded", concluded)
	return outcomes, nil
}

func (m *Monitor) check(ctx context.Context, test *store.ABTest) Outcome {
	out := Outcome{TestID: test.ID, TestName: test.Name}
	log := m.logger.With("test_id", test.ID, "test", test.Name)

	st, err := m.engine.Status(ctx, test.ID)
	if err != nil {
		log.Error("failed to evaluate test", "error", err)
		out.Err = err
		return out
	}
	out.Warnings = st.Warnings
	for _, w := range st.Warnings {
		log.Warn(w.Message, "warning", w.Type, "severity", string(w.Severity), "action", w.Action)
	}

	switch {
	case st.Evaluation.Winner != nil:
		out.Reason = ReasonWinner
	case test.EndDate != nil && !m.engine.Now().Before(*test.EndDate):
		out.Reason = ReasonEndDate
	default:
		return out
	}

	res, err := m.engine.Conclude(ctx, test.ID, engine.ConcludeRequest{Reason: out.Reason})
	if err != nil {
		log.Error("failed to conclude test", "reason", out.Reason, "error", err)
		out.Err = err
		return out
	}
	out.Concluded = res.Changed
	out.WinnerVariantID = res.Test.WinnerVariantID
	return out
}
