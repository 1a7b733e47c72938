package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors, registered on the default registry and served
// at /metrics.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_http_requests_total",
		Help: "Total HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kestrel_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	chequesScoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_cheques_scored_total",
		Help: "Scored cheques by risk level and decision.",
	}, []string{"risk_level", "decision"})

	scoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kestrel_score_duration_seconds",
		Help:    "End-to-end scoring pipeline latency.",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	fraudScoreObserved = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kestrel_fraud_score",
		Help:    "Distribution of final fraud scores.",
		Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})
)
