// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VisibilityProbes counts review-host visibility probes by outcome.
	VisibilityProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patch_warden_visibility_probes_total",
		Help: "Visibility probes by resulting build state",
	}, []string{"state"})

	// TryResults counts terminal try-push outcomes by mode.
	TryResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patch_warden_try_results_total",
		Help: "Try-push results by mode",
	}, []string{"mode"})

	// PushAttempts counts clean, apply and push cycles, including retries.
	PushAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patch_warden_push_attempts_total",
		Help: "Try-push attempts including retries",
	})

	// ApplyDuration tracks the time spent applying a patch stack.
	ApplyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "patch_warden_apply_duration_seconds",
		Help:    "Patch stack application duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4min
	}, []string{"repository"})

	// QueuedBuilds is the number of builds waiting for a visibility decision.
	QueuedBuilds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "patch_warden_queued_builds",
		Help: "Builds waiting to become visible",
	})

	// ComparisonQueries counts issue comparison queries by mode and status.
	ComparisonQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patch_warden_comparison_queries_total",
		Help: "Issue comparison queries by mode and status code",
	}, []string{"mode", "status"})
)
