// Package metrics holds the Prometheus collectors for the recommender.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream (Last.fm) metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lastfm_requests_total",
			Help: "Total number of Last.fm API calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lastfm_retries_total",
			Help: "Total number of retried Last.fm API attempts",
		},
		[]string{"method"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lastfm_request_duration_seconds",
			Help:    "Duration of Last.fm API calls including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Result cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_cache_lookups_total",
			Help: "Result cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "expired"
	)

	// Selection metrics
	SelectionPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_passes_total",
			Help: "Selection passes by mode and outcome",
		},
		[]string{"mode", "outcome"}, // mode: "cached", "full", "replacement"
	)

	SelectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_pass_duration_seconds",
			Help:    "Duration of selection passes",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	CandidatesEnriched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_candidates_total",
			Help: "Candidates processed by source and result",
		},
		[]string{"source", "result"}, // source: "similar", "tag"; result: "known", "new", "skipped", "failed"
	)

	// Artwork side channel
	ArtworkLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artwork_lookups_total",
			Help: "Artist image lookups by finder and result",
		},
		[]string{"finder", "result"},
	)
)

// ObserveUpstream records one logical upstream call.
func ObserveUpstream(method, outcome string, d time.Duration) {
	UpstreamRequests.WithLabelValues(method, outcome).Inc()
	UpstreamDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObservePass records one selection pass.
func ObservePass(mode, outcome string, d time.Duration) {
	SelectionPasses.WithLabelValues(mode, outcome).Inc()
	SelectionDuration.WithLabelValues(mode).Observe(d.Seconds())
}
