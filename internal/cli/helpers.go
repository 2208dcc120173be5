package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/headline-goat/adlift/internal/cache"
	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// newEngine builds the engine, wiring the Redis results cache when one is
// configured. The returned func releases the cache connection.
func newEngine(ctx context.Context, s *store.SQLiteStore) (*engine.Engine, func(), error) {
	opts := []engine.Option{engine.WithLogger(logger)}
	cleanup := func() {}

	if cfg.RedisURL != "" && cfg.CacheTTL > 0 {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		opts = append(opts, engine.WithCache(cache.NewResultsCache(client, cfg.CacheTTL)))
		cleanup = func() { client.Close() }
	}

	return engine.New(s, opts...), cleanup, nil
}

// findTest resolves a test by numeric ID or by name.
func findTest(ctx context.Context, s *store.SQLiteStore, ref string) (*store.ABTest, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		test, err := s.GetTest(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("test %d not found", id)
		}
		return test, err
	}

	tests, err := s.ListTests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	for _, t := range tests {
		if t.Name == ref {
			return t, nil
		}
	}
	return nil, fmt.Errorf("test '%s' not found", ref)
}

// tokenFilePath keeps the server token next to the database.
func tokenFilePath() string {
	return filepath.Join(filepath.Dir(dbPath), ".adlift-token")
}

func formatNumber(n int64) string {
	return humanize.Comma(n)
}

func formatLift(lift float64, ok bool) string {
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", lift)
}
