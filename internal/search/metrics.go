package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// searchesTotal counts hybrid searches by outcome.
	// Labels: collection, result (ok, degraded, failed)
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foliod",
			Subsystem: "search",
			Name:      "searches_total",
			Help:      "Total number of hybrid searches by outcome",
		},
		[]string{"collection", "result"},
	)

	// searchDuration tracks end-to-end hybrid search latency.
	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "foliod",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Duration of hybrid searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection"},
	)
)
