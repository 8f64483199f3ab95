// Package metrics exposes Prometheus collectors for the feed engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the feed engine's collectors.
	Registry = prometheus.NewRegistry()

	fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "activityfeed",
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "HTTP attempts made against the activity endpoint.",
		},
		[]string{"outcome"},
	)

	fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "activityfeed",
			Subsystem: "fetch",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of single HTTP attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	loads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "activityfeed",
			Subsystem: "sync",
			Name:      "loads_total",
			Help:      "Feed loads by source and result.",
		},
		[]string{"source", "result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "activityfeed",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Page-1 cache lookups.",
		},
		[]string{"result"},
	)

	activities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "activityfeed",
			Subsystem: "sync",
			Name:      "activities",
			Help:      "Number of activities currently loaded.",
		},
	)
)

func init() {
	Registry.MustRegister(fetchAttempts, fetchDuration, loads, cacheLookups, activities)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordFetchAttempt counts one HTTP attempt and its duration.
func RecordFetchAttempt(outcome string, seconds float64) {
	fetchAttempts.WithLabelValues(outcome).Inc()
	fetchDuration.Observe(seconds)
}

// RecordLoad counts a synchronizer load.
func RecordLoad(source, result string) {
	loads.WithLabelValues(source, result).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// SetActivities records how many activities are loaded.
func SetActivities(n int) {
	activities.Set(float64(n))
}
