package cache_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/adlift/internal/cache"
	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/stats"
	"github.com/headline-goat/adlift/internal/store"
)

func sampleEvaluation() *engine.Evaluation {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	test := &store.ABTest{
		ID:              3,
		Name:            "hero",
		Dimension:       store.DimensionStrategy,
		Status:          store.StatusRunning,
		ConfidenceLevel: stats.Confidence99,
		MinSampleSize:   1000,
		StartDate:       start,
		UpdatedAt:       start,
	}
	variants := []store.Variant{
		{ID: 1, TestID: 3, Name: "A", IsControl: true, CampaignIDs: []int64{100}},
		{ID: 2, TestID: 3, Position: 1, Name: "B", CampaignIDs: []int64{101}},
	}
	rows := []store.LedgerRow{
		{CampaignID: 100, Date: start, Impressions: 10000, Clicks: 1000, Conversions: 100, Cost: 500},
		{CampaignID: 101, Date: start, Impressions: 10000, Clicks: 1000, Conversions: 150, Cost: 480.5},
	}
	return engine.Evaluate(test, variants, rows, start.Add(72*time.Hour))
}

func TestEvaluationSurvivesJSON(t *testing.T) {
	ev := sampleEvaluation()

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded engine.Evaluation
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, store.DimensionStrategy, decoded.Test.Dimension)
	assert.Equal(t, store.MetricConversions, decoded.Test.Dimension.Primary())
	require.NotNil(t, decoded.Winner)
	assert.Equal(t, ev.Winner.VariantID, decoded.Winner.VariantID)
	require.NotNil(t, decoded.Variants[1].VsControl)
	assert.Equal(t, ev.Variants[1].VsControl.PValue, decoded.Variants[1].VsControl.PValue)
	assert.Equal(t, ev.Recommendation, decoded.Recommendation)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := cache.Connect(context.Background(), "redis://:bad@host:notaport/0")
	assert.Error(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := cache.Connect(ctx, "127.0.0.1:1")
	assert.Error(t, err)
}

// Needs a live server: ADLIFT_TEST_REDIS_URL=redis://localhost:6379/15
func TestResultsCache_RoundTrip(t *testing.T) {
	url := os.Getenv("ADLIFT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ADLIFT_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := cache.Connect(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	c := cache.NewResultsCache(client, time.Minute)
	key := "adlift:results:test:" + time.Now().Format(time.RFC3339Nano)
	defer client.Del(ctx, key)

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	ev := sampleEvaluation()
	require.NoError(t, c.Set(ctx, key, ev))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ev.Winner.VariantID, got.Winner.VariantID)
	assert.Equal(t, ev.Totals, got.Totals)
}

func newTestCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *cache.ResultsCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := cache.Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return mr, cache.NewResultsCache(client, ttl)
}

func TestResultsCache_MissThenHit(t *testing.T) {
	mr, c := newTestCache(t, time.Minute)
	ctx := context.Background()
	key := "adlift:results:v1:3:running:1767225600:2026-01-01:2026-01-04"

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	ev := sampleEvaluation()
	require.NoError(t, c.Set(ctx, key, ev))
	assert.Equal(t, time.Minute, mr.TTL(key))

	got, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.Winner)
	assert.Equal(t, ev.Winner.VariantID, got.Winner.VariantID)
	assert.Equal(t, ev.Totals, got.Totals)
	assert.Equal(t, ev.Variants[1].Daily, got.Variants[1].Daily)
}

func TestResultsCache_EntriesExpire(t *testing.T) {
	mr, c := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", sampleEvaluation()))
	assert.Equal(t, cache.DefaultTTL, mr.TTL("k"))

	mr.FastForward(cache.DefaultTTL + time.Second)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResultsCache_CorruptEntry(t *testing.T) {
	mr, c := newTestCache(t, time.Minute)
	require.NoError(t, mr.Set("k", "not json"))

	_, ok, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestResultsCache_ServerGone(t *testing.T) {
	mr, c := newTestCache(t, time.Minute)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, ok, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(ctx, "k", sampleEvaluation()))
}

func TestConnect_BareAddress(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := cache.Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	client.Close()
}
