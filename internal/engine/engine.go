package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/headline-goat/adlift/internal/metrics"
	"github.com/headline-goat/adlift/internal/store"
)

var ErrVariantNotInTest = errors.New("variant does not belong to test")

// Repository is the slice of the store the engine reads and writes.
type Repository interface {
	GetTest(ctx context.Context, id int64) (*store.ABTest, error)
	ListVariants(ctx context.Context, testID int64) ([]store.Variant, error)
	PerformanceRows(ctx context.Context, campaignIDs []int64, from, to time.Time) ([]store.LedgerRow, error)
	ConcludeTest(ctx context.Context, id int64, c store.Conclusion) (bool, error)
}

// Cache stores finished evaluations under versioned keys.
type Cache interface {
	Get(ctx context.Context, key string) (*Evaluation, bool, error)
	Set(ctx context.Context, key string, ev *Evaluation) error
}

// Engine loads tests and their ledger rows and evaluates them. It keeps
// no state between calls.
type Engine struct {
	repo   Repository
	cache  Cache
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Engine)

func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now is the engine's clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Results evaluates a test against its ledger as of now.
func (e *Engine) Results(ctx context.Context, testID int64) (*Evaluation, error) {
	start := time.Now()
	defer func() { metrics.ObserveEvaluation("results", time.Since(start)) }()

	test, err := e.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	return e.evaluate(ctx, test)
}

// Status evaluates a test and adds progress, leader and warnings.
func (e *Engine) Status(ctx context.Context, testID int64) (*Status, error) {
	start := time.Now()
	defer func() { metrics.ObserveEvaluation("status", time.Since(start)) }()

	test, err := e.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	ev, err := e.evaluate(ctx, test)
	if err != nil {
		return nil, err
	}
	return TrackProgress(test, ev, e.now()), nil
}

func (e *Engine) evaluate(ctx context.Context, test *store.ABTest) (*Evaluation, error) {
	now := e.now()
	window := ActiveWindow(test, now)
	key := CacheKey(test, window)

	if e.cache != nil {
		ev, ok, err := e.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.RecordCacheLookup("error")
			e.logger.Warn("results cache read failed", "test_id", test.ID, "error", err)
		case ok:
			metrics.RecordCacheLookup("hit")
			return ev, nil
		default:
			metrics.RecordCacheLookup("miss")
		}
	}

	variants, err := e.repo.ListVariants(ctx, test.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}

	var rows []store.LedgerRow
	if !window.Empty() {
		rows, err = e.repo.PerformanceRows(ctx, CampaignIDs(variants), window.From, window.To)
		if err != nil {
			return nil, fmt.Errorf("failed to load performance: %w", err)
		}
	}

	ev := Evaluate(test, variants, rows, now)

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, ev); err != nil {
			e.logger.Warn("results cache write failed", "test_id", test.ID, "error", err)
		}
	}
	return ev, nil
}

// CacheKey versions an evaluation by the test's last update, its status
// and the ledger window, so any transition or new day yields a new key.
func CacheKey(test *store.ABTest, w Window) string {
	return fmt.Sprintf("adlift:results:v1:%d:%s:%d:%s:%s",
		test.ID, test.Status, test.UpdatedAt.Unix(),
		w.From.Format(store.DateLayout), w.To.Format(store.DateLayout))
}

// ConcludeRequest picks what gets locked. With neither field set the
// computed winner, if any, is locked.
type ConcludeRequest struct {
	WinnerVariantID *int64
	NoWinner        bool
	Reason          string
}

type ConcludeResult struct {
	Test    *store.ABTest
	Changed bool
}

// Conclude moves a test to concluded. Calling it on a concluded test is
// a no-op that returns Changed=false and the stored winner.
func (e *Engine) Conclude(ctx context.Context, testID int64, req ConcludeRequest) (*ConcludeResult, error) {
	res, err := e.conclude(ctx, testID, req)
	switch {
	case err != nil:
		metrics.RecordConclusion("error")
	case !res.Changed:
		metrics.RecordConclusion("already_concluded")
	case res.Test.WinnerVariantID != nil:
		metrics.RecordConclusion("winner")
	default:
		metrics.RecordConclusion("no_winner")
	}
	return res, err
}

func (e *Engine) conclude(ctx context.Context, testID int64, req ConcludeRequest) (*ConcludeResult, error) {
	test, err := e.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status == store.StatusConcluded {
		return &ConcludeResult{Test: test}, nil
	}

	ev, err := e.evaluate(ctx, test)
	if err != nil {
		return nil, err
	}

	c := store.Conclusion{At: e.now()}
	switch {
	case req.NoWinner:
	case req.WinnerVariantID != nil:
		r, ok := ev.Result(*req.WinnerVariantID)
		if !ok {
			return nil, fmt.Errorf("%w: variant %d, test %d", ErrVariantNotInTest, *req.WinnerVariantID, testID)
		}
		winner := r.Variant.ID
		c.WinnerVariantID = &winner
		if r.VsControl != nil {
			confidence := 1 - r.VsControl.PValue
			c.StatisticalConfidence = &confidence
		}
	case ev.Winner != nil:
		winner := ev.Winner.VariantID
		confidence := 1 - ev.Winner.PValue
		c.WinnerVariantID = &winner
		c.StatisticalConfidence = &confidence
	}

	changed, err := e.repo.ConcludeTest(ctx, testID, c)
	if err != nil {
		return nil, err
	}

	updated, err := e.repo.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if changed {
		var winner int64
		if c.WinnerVariantID != nil {
			winner = *c.WinnerVariantID
		}
		e.logger.Info("test concluded",
			"test_id", testID,
			"winner_variant_id", winner,
			"reason", req.Reason,
		)
	}
	return &ConcludeResult{Test: updated, Changed: changed}, nil
}
