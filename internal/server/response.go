package server

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/headline-goat/adlift/internal/engine"
	"github.com/headline-goat/adlift/internal/store"
)

// Values stay at full precision inside the engine and are rounded here:
// 2 dp for money and percentages, 4 dp for p-values, z-scores and bounds.
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

type TestResponse struct {
	ID                    int64      `json:"id"`
	Name                  string     `json:"name"`
	Dimension             string     `json:"dimension"`
	PrimaryMetric         string     `json:"primary_metric"`
	Status                string     `json:"status"`
	ConfidenceLevel       float64    `json:"confidence_level"`
	MinSampleSize         int64      `json:"min_sample_size"`
	OfferID               *int64     `json:"offer_id"`
	StartDate             time.Time  `json:"start_date"`
	EndDate               *time.Time `json:"end_date"`
	WinnerVariantID       *int64     `json:"winner_variant_id"`
	StatisticalConfidence *float64   `json:"statistical_confidence"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func newTestResponse(t *store.ABTest) TestResponse {
	resp := TestResponse{
		ID:              t.ID,
		Name:            t.Name,
		Dimension:       t.Dimension.String(),
		PrimaryMetric:   t.Dimension.Primary().String(),
		Status:          string(t.Status),
		ConfidenceLevel: float64(t.ConfidenceLevel),
		MinSampleSize:   t.MinSampleSize,
		OfferID:         t.OfferID,
		StartDate:       t.StartDate.UTC(),
		WinnerVariantID: t.WinnerVariantID,
		CreatedAt:       t.CreatedAt.UTC(),
		UpdatedAt:       t.UpdatedAt.UTC(),
	}
	if t.EndDate != nil {
		end := t.EndDate.UTC()
		resp.EndDate = &end
	}
	if t.StatisticalConfidence != nil {
		c := round4(*t.StatisticalConfidence)
		resp.StatisticalConfidence = &c
	}
	return resp
}

// Results payload. Field names follow the results API consumed by the
// dashboard (camelCase); the status payload uses snake_case.

type ResultsResponse struct {
	Test     TestResponse     `json:"test"`
	Variants []VariantResults `json:"variants"`
	Analysis Analysis         `json:"analysis"`
}

type VariantResults struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Label       string      `json:"label"`
	IsControl   bool        `json:"isControl"`
	CampaignIDs []int64     `json:"campaignIds"`
	Performance Performance `json:"performance"`
	Statistics  Statistics  `json:"statistics"`
}

type Performance struct {
	Impressions    int64   `json:"impressions"`
	Clicks         int64   `json:"clicks"`
	Conversions    int64   `json:"conversions"`
	Cost           float64 `json:"cost"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversionRate"`
	CPA            float64 `json:"cpa"`
	CPC            float64 `json:"cpc"`
}

type Statistics struct {
	VsControl *VsControl `json:"vsControl"`
	IsWinner  bool       `json:"isWinner"`
	Message   string     `json:"message,omitempty"`
}

type VsControl struct {
	ZScore        float64  `json:"zScore"`
	PValue        float64  `json:"pValue"`
	CILower       float64  `json:"ciLower"`
	CIUpper       float64  `json:"ciUpper"`
	IsSignificant bool     `json:"isSignificant"`
	Lift          *float64 `json:"lift"`
}

type Analysis struct {
	HasEnoughData    bool            `json:"hasEnoughData"`
	TotalImpressions int64           `json:"totalImpressions"`
	TotalClicks      int64           `json:"totalClicks"`
	TotalConversions int64           `json:"totalConversions"`
	TotalCost        float64         `json:"totalCost"`
	Winner           *WinnerResponse `json:"winner"`
	Recommendation   string          `json:"recommendation"`
	Message          string          `json:"message,omitempty"`
}

type WinnerResponse struct {
	VariantID   int64    `json:"variantId"`
	VariantName string   `json:"variantName"`
	Lift        *float64 `json:"lift"`
	PValue      float64  `json:"pValue"`
}

func liftPtr(lift float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	v := round2(lift)
	return &v
}

func newPerformance(s engine.Snapshot) Performance {
	return Performance{
		Impressions:    s.Impressions,
		Clicks:         s.Clicks,
		Conversions:    s.Conversions,
		Cost:           round2(s.Cost),
		CTR:            round2(s.CTR()),
		ConversionRate: round2(s.ConversionRate()),
		CPA:            round2(s.CPA()),
		CPC:            round2(s.CPC()),
	}
}

func newResultsResponse(ev *engine.Evaluation) ResultsResponse {
	resp := ResultsResponse{
		Test:     newTestResponse(&ev.Test),
		Variants: make([]VariantResults, 0, len(ev.Variants)),
		Analysis: Analysis{
			HasEnoughData:    ev.HasEnoughData,
			TotalImpressions: ev.Totals.Impressions,
			TotalClicks:      ev.Totals.Clicks,
			TotalConversions: ev.Totals.Conversions,
			TotalCost:        round2(ev.Totals.Cost),
			Recommendation:   ev.Recommendation,
			Message:          ev.Message,
		},
	}

	for _, r := range ev.Variants {
		vr := VariantResults{
			ID:          r.Variant.ID,
			Name:        r.Variant.Name,
			Label:       r.Variant.Label,
			IsControl:   r.Variant.IsControl,
			CampaignIDs: r.Variant.CampaignIDs,
			Performance: newPerformance(r.Performance),
			Statistics: Statistics{
				IsWinner: r.IsWinner,
				Message:  r.Message,
			},
		}
		if c := r.VsControl; c != nil {
			vr.Statistics.VsControl = &VsControl{
				ZScore:        round4(c.Z),
				PValue:        round4(c.PValue),
				CILower:       round4(c.CILower),
				CIUpper:       round4(c.CIUpper),
				IsSignificant: c.IsSignificant,
				Lift:          liftPtr(c.Lift, c.HasLift),
			}
		}
		resp.Variants = append(resp.Variants, vr)
	}

	if w := ev.Winner; w != nil {
		resp.Analysis.Winner = &WinnerResponse{
			VariantID:   w.VariantID,
			VariantName: w.VariantName,
			Lift:        liftPtr(w.Lift, w.HasLift),
			PValue:      round4(w.PValue),
		}
	}
	return resp
}

type StatusResponse struct {
	Test            TestResponse      `json:"test"`
	Progress        ProgressResponse  `json:"progress"`
	CurrentLeader   *LeaderResponse   `json:"current_leader"`
	Variants        []VariantStatus   `json:"variants"`
	Warnings        []WarningResponse `json:"warnings"`
	IsComplete      bool              `json:"is_complete"`
	WinnerVariantID *int64            `json:"winner_variant_id"`
}

type ProgressResponse struct {
	TotalSamples            int64      `json:"total_samples"`
	MinSamplesRequired      int64      `json:"min_samples_required"`
	CompletionPercentage    float64    `json:"completion_percentage"`
	EstimatedCompletionDate *time.Time `json:"estimated_completion_date"`
	HoursRunning            float64    `json:"hours_running"`
}

type LeaderResponse struct {
	VariantID     int64    `json:"variant_id"`
	Name          string   `json:"name"`
	Label         string   `json:"label"`
	PrimaryMetric string   `json:"primary_metric"`
	PrimaryValue  int64    `json:"primary_value"`
	Lift          *float64 `json:"lift"`
	Confidence    float64  `json:"confidence"`
	IsSignificant bool     `json:"is_significant"`
}

type VariantStatus struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Label     string        `json:"label"`
	IsControl bool          `json:"is_control"`
	Metrics   StatusMetrics `json:"metrics"`
}

type StatusMetrics struct {
	Impressions    int64   `json:"impressions"`
	Clicks         int64   `json:"clicks"`
	Conversions    int64   `json:"conversions"`
	Cost           float64 `json:"cost"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversion_rate"`
	CPC            float64 `json:"cpc"`
	CPA            float64 `json:"cpa"`
	WilsonLower    float64 `json:"wilson_lower"`
	WilsonUpper    float64 `json:"wilson_upper"`
	DailyMean      float64 `json:"daily_mean"`
	DailyStdDev    float64 `json:"daily_stddev"`
}

type WarningResponse struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Action   string `json:"action"`
}

func newStatusResponse(st *engine.Status) StatusResponse {
	ev := st.Evaluation
	resp := StatusResponse{
		Test: newTestResponse(&ev.Test),
		Progress: ProgressResponse{
			TotalSamples:         st.Progress.TotalSamples,
			MinSamplesRequired:   st.Progress.MinSamplesRequired,
			CompletionPercentage: round2(st.Progress.CompletionPercentage),
			HoursRunning:         round2(st.Progress.HoursRunning),
		},
		Variants:        make([]VariantStatus, 0, len(ev.Variants)),
		Warnings:        make([]WarningResponse, 0, len(st.Warnings)),
		IsComplete:      st.IsComplete,
		WinnerVariantID: st.WinnerVariantID,
	}
	if eta := st.Progress.EstimatedCompletion; eta != nil {
		t := eta.UTC()
		resp.Progress.EstimatedCompletionDate = &t
	}

	if l := st.CurrentLeader; l != nil {
		resp.CurrentLeader = &LeaderResponse{
			VariantID:     l.VariantID,
			Name:          l.Name,
			Label:         l.Label,
			PrimaryMetric: l.PrimaryMetric.String(),
			PrimaryValue:  l.PrimaryValue,
			Lift:          liftPtr(l.Lift, l.HasLift),
			Confidence:    round4(l.Confidence),
			IsSignificant: l.IsSignificant,
		}
	}

	for _, r := range ev.Variants {
		p := r.Performance
		resp.Variants = append(resp.Variants, VariantStatus{
			ID:        r.Variant.ID,
			Name:      r.Variant.Name,
			Label:     r.Variant.Label,
			IsControl: r.Variant.IsControl,
			Metrics: StatusMetrics{
				Impressions:    p.Impressions,
				Clicks:         p.Clicks,
				Conversions:    p.Conversions,
				Cost:           round2(p.Cost),
				CTR:            round2(p.CTR()),
				ConversionRate: round2(p.ConversionRate()),
				CPC:            round2(p.CPC()),
				CPA:            round2(p.CPA()),
				WilsonLower:    round4(r.WilsonLower),
				WilsonUpper:    round4(r.WilsonUpper),
				DailyMean:      round2(r.Daily.Mean),
				DailyStdDev:    round2(r.Daily.StdDev),
			},
		})
	}

	for _, w := range st.Warnings {
		resp.Warnings = append(resp.Warnings, WarningResponse{
			Type:     w.Type,
			Message:  w.Message,
			Severity: string(w.Severity),
			Action:   w.Action,
		})
	}
	return resp
}

type ConcludeResponse struct {
	Test    TestResponse `json:"test"`
	Changed bool         `json:"changed"`
}
