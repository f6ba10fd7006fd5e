// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Total number of recommendation responses by algorithm used",
		},
		[]string{"algorithm", "cache"},
	)

	RecommendationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_failed_total",
			Help: "Total number of recommendation requests that returned an error",
		},
		[]string{"error_code"},
	)

	RecommendationsDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_degraded_total",
			Help: "Total number of degraded recommendation responses",
		},
		[]string{"reason"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"algorithm"},
	)

	FeedbackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_events_total",
			Help: "Total number of feedback events by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommendation_cache_entries",
			Help: "Number of entries held in the local recommendation cache",
		},
	)
)
