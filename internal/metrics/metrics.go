// Package metrics holds the Prometheus collectors for evaluations,
// conclusions and the results cache. They register on the default
// registry and are served by the HTTP server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: kind (results, status)
	evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adlift",
		Name:      "evaluations_total",
		Help:      "Test evaluations computed from the ledger",
	}, []string{"kind"})

	evaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "adlift",
		Name:      "evaluation_duration_seconds",
		Help:      "Time to load and evaluate one test",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"kind"})

	// Labels: outcome (winner, no_winner, already_concluded, error)
	conclusions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adlift",
		Name:      "conclusions_total",
		Help:      "Conclude attempts by outcome",
	}, []string{"outcome"})

	// Labels: result (hit, miss, error)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adlift",
		Name:      "results_cache_total",
		Help:      "Results cache lookups by result",
	}, []string{"result"})
)

// ObserveEvaluation records one evaluation of the given kind.
func ObserveEvaluation(kind string, d time.Duration) {
	evaluations.WithLabelValues(kind).Inc()
	evaluationDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func RecordConclusion(outcome string) {
	conclusions.WithLabelValues(outcome).Inc()
}

func RecordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}
