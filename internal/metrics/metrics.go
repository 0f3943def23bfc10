// Package metrics registers the Prometheus collectors for worker runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifyqueue",
		Name:      "jobs_processed_total",
		Help:      "Jobs handled by the worker, by queue and outcome.",
	}, []string{"queue", "outcome"})

	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifyqueue",
		Name:      "runs_total",
		Help:      "Driver runs, by lock result.",
	}, []string{"lock"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "notifyqueue",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a driver run that acquired the lock.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	CleanupDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifyqueue",
		Name:      "cleanup_deleted_total",
		Help:      "Rows removed by cleanup, by table.",
	}, []string{"table"})
)
