// Package metrics provides Prometheus collectors for the marketplace API and workers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketplace"

var (
	// HTTPRequestsTotal counts handled requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	PolicyDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "denials_total",
			Help:      "Authorization denials by action",
		},
		[]string{"action"},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "failures_total",
			Help:      "Rejected inputs by operation",
		},
		[]string{"operation"},
	)

	// Notifications counts in-app notifications by result (stored, skipped, failed).
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Notifications by kind and result",
		},
		[]string{"kind", "result"},
	)

	// NavCacheLookups counts navigation tree lookups by result (hit, miss, error).
	NavCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Read-through cache lookups by key and result",
		},
		[]string{"key", "result"},
	)

	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "processed_total",
			Help:      "Background tasks processed by type and result",
		},
		[]string{"type", "result"},
	)

	// AdsExpired counts ads archived by the expiry sweep.
	AdsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ads",
			Name:      "expired_total",
			Help:      "Ads archived after their expiry date",
		},
	)
)
