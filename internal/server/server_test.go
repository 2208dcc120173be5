package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/server"
	"github.com/headline-goat/adlift/internal/store"
)

const testToken = "secret-token"

var (
	startDate = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now       = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	srv      *server.Server
	store    *store.SQLiteStore
	test     *store.ABTest
	variants []store.Variant
}

// setup serves one running test where B significantly beats control A.
func setup(t *testing.T) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	test, variants, err := s.CreateTest(ctx, store.NewTest{
		Name:            "hero",
		Dimension:       "creative",
		ConfidenceLevel: 0.95,
		MinSampleSize:   1000,
		StartDate:       startDate,
		Variants: []store.NewVariant{
			{Name: "A", Label: "Save time", IsControl: true, CampaignIDs: []int64{100}},
			{Name: "B", Label: "Save money", CampaignIDs: []int64{101}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.SetStatus(ctx, test.ID, []store.TestStatus{store.StatusDraft}, store.StatusRunning))
	require.NoError(t, s.AppendPerformance(ctx, []store.LedgerRow{
		{CampaignID: 100, Date: startDate, Impressions: 10000, Clicks: 1000, Conversions: 100, Cost: 250.125},
		{CampaignID: 101, Date: startDate, Impressions: 8000, Clicks: 1000, Conversions: 150, Cost: 240},
	}))

	eng := engine.New(s, engine.WithClock(func() time.Time { return now }))
	srv := server.New(s, eng, server.Options{Token: testToken})
	return &fixture{srv: srv, store: s, test: test, variants: variants}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("Authorization", "Bearer "+testToken)

	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "failed to decode response")
	return v
}

func TestHealth(t *testing.T) {
	f := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[server.HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.TestsCount)
	assert.Positive(t, resp.DBSizeBytes)
}

func TestRequestIDHeader(t *testing.T) {
	f := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, w.Header().Get("X-Request-Id"), 36)
}

func TestAuth(t *testing.T) {
	f := setup(t)
	path := "/api/tests"

	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode[server.ErrorResponse](t, w).Error)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Query token sets a cookie that works on its own afterwards
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path+"?token="+testToken, nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	req = httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListTests(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodGet, "/api/tests", "")
	require.Equal(t, http.StatusOK, w.Code)
	tests := decode[[]server.TestResponse](t, w)
	require.Len(t, tests, 1)
	assert.Equal(t, "hero", tests[0].Name)
	assert.Equal(t, "clicks", tests[0].PrimaryMetric)

	w = f.do(t, http.MethodGet, "/api/tests?status=concluded", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = f.do(t, http.MethodGet, "/api/tests?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResults(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodGet, "/api/tests/1/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decode[server.ResultsResponse](t, w)
	assert.Equal(t, "hero", resp.Test.Name)
	require.Len(t, resp.Variants, 2)

	control := resp.Variants[0]
	assert.True(t, control.IsControl)
	assert.Nil(t, control.Statistics.VsControl)
	assert.Equal(t, 250.13, control.Performance.Cost)
	assert.Equal(t, 10.0, control.Performance.CTR)
	assert.Equal(t, 2.5, control.Performance.CPA)

	b := resp.Variants[1]
	require.NotNil(t, b.Statistics.VsControl)
	assert.Equal(t, -3.3806, b.Statistics.VsControl.ZScore)
	assert.Equal(t, 0.0007, b.Statistics.VsControl.PValue)
	assert.True(t, b.Statistics.VsControl.IsSignificant)
	require.NotNil(t, b.Statistics.VsControl.Lift)
	assert.Equal(t, 50.0, *b.Statistics.VsControl.Lift)
	assert.True(t, b.Statistics.IsWinner)

	assert.True(t, resp.Analysis.HasEnoughData)
	assert.Equal(t, int64(2000), resp.Analysis.TotalClicks)
	assert.Equal(t, 490.13, resp.Analysis.TotalCost)
	require.NotNil(t, resp.Analysis.Winner)
	assert.Equal(t, "B", resp.Analysis.Winner.VariantName)
	assert.Equal(t, "Variant B is statistically significantly better than control (lift +50.00%)", resp.Analysis.Recommendation)
}

func TestResults_Errors(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodGet, "/api/tests/999/results", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[server.ErrorResponse](t, w).Error)

	w = f.do(t, http.MethodGet, "/api/tests/abc/results", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatus(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodGet, "/api/tests/1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"warnings":[]`)

	var resp server.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, int64(2000), resp.Progress.TotalSamples)
	assert.Equal(t, int64(1000), resp.Progress.MinSamplesRequired)
	assert.Equal(t, 100.0, resp.Progress.CompletionPercentage)
	assert.Equal(t, 228.0, resp.Progress.HoursRunning)
	require.NotNil(t, resp.Progress.EstimatedCompletionDate)

	require.NotNil(t, resp.CurrentLeader)
	assert.Equal(t, "B", resp.CurrentLeader.Name)
	assert.True(t, resp.CurrentLeader.IsSignificant)
	assert.Equal(t, "clicks", resp.CurrentLeader.PrimaryMetric)

	require.Len(t, resp.Variants, 2)
	assert.Equal(t, 12.5, resp.Variants[1].Metrics.CTR)
	assert.Less(t, resp.Variants[1].Metrics.WilsonLower, resp.Variants[1].Metrics.WilsonUpper)
	// 1000 clicks on the first of ten days
	assert.Equal(t, 100.0, resp.Variants[1].Metrics.DailyMean)
	assert.Equal(t, 300.0, resp.Variants[1].Metrics.DailyStdDev)

	assert.True(t, resp.IsComplete)
	assert.Nil(t, resp.WinnerVariantID)
}

func TestConclude(t *testing.T) {
	f := setup(t)

	w := f.do(t, http.MethodPost, "/api/tests/1/conclude", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[server.ConcludeResponse](t, w)
	assert.True(t, resp.Changed)
	assert.Equal(t, "concluded", resp.Test.Status)
	require.NotNil(t, resp.Test.WinnerVariantID)
	assert.Equal(t, f.variants[1].ID, *resp.Test.WinnerVariantID)
	require.NotNil(t, resp.Test.StatisticalConfidence)
	assert.Equal(t, 0.9993, *resp.Test.StatisticalConfidence)

	// Idempotent
	w = f.do(t, http.MethodPost, "/api/tests/1/conclude", `{"winner_variant_id": 1}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[server.ConcludeResponse](t, w)
	assert.False(t, resp.Changed)
	assert.Equal(t, f.variants[1].ID, *resp.Test.WinnerVariantID)

	// The status view now reports the locked winner
	w = f.do(t, http.MethodGet, "/api/tests/1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[server.StatusResponse](t, w)
	require.NotNil(t, st.WinnerVariantID)
	assert.Equal(t, f.variants[1].ID, *st.WinnerVariantID)
}

func TestConclude_Errors(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"foreign variant", "/api/tests/1/conclude", `{"winner_variant_id": 77}`, http.StatusBadRequest},
		{"bad json", "/api/tests/1/conclude", `{"winner_variant_id":`, http.StatusBadRequest},
		{"conflicting fields", "/api/tests/1/conclude", `{"winner_variant_id": 2, "no_winner": true}`, http.StatusBadRequest},
		{"unknown test", "/api/tests/404/conclude", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	got, err := f.store.GetTest(context.Background(), f.test.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, got.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setup(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/tests/1/results", "").Code)

	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `adlift_evaluations_total{kind="results"}`)
}
