// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "propjockey"

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	Votes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Vote attempts by direction and outcome code.",
		},
		[]string{"direction", "outcome"},
	)

	FeedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_rows_total",
			Help:      "Feed rows served per tier.",
		},
		[]string{"tier"},
	)

	SweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Completed sweeper runs.",
	})

	SweepCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_completed_total",
		Help:      "Demand records moved to COMPLETED.",
	})

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification sends by result.",
		},
		[]string{"result"},
	)

	PriorityUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "priority_updates_total",
			Help:      "Workflow priority updates by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		HTTPRequests,
		HTTPDuration,
		Votes,
		FeedRows,
		SweepRuns,
		SweepCompleted,
		Notifications,
		PriorityUpdates,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
