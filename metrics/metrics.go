package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RequestsCreatedTotal counts submitted service requests by category.
	RequestsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicservice",
		Subsystem: "requests",
		Name:      "created_total",
		Help:      "Total number of service requests submitted, labeled by category.",
	}, []string{"category"})

	// StatusChangesTotal counts status updates by the new status.
	StatusChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicservice",
		Subsystem: "requests",
		Name:      "status_changes_total",
		Help:      "Total number of status updates, labeled by new status.",
	}, []string{"status"})

	// UpvotesTotal counts upvote attempts by outcome (added, duplicate, removed, missing).
	UpvotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicservice",
		Subsystem: "upvotes",
		Name:      "operations_total",
		Help:      "Total number of upvote operations, labeled by result.",
	}, []string{"result"})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicservice",
		Subsystem: "notifications",
		Name:      "sent_total",
		Help:      "Total number of status change notifications, labeled by result.",
	}, []string{"result"})

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "civicservice",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route and status code.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route", "code"})

	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicservice",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by a rate limiter, labeled by limiter.",
	}, []string{"limiter"})
)

// Register registers the metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RequestsCreatedTotal,
			StatusChangesTotal,
			UpvotesTotal,
			NotificationsTotal,
			HTTPRequestDurationSeconds,
			RateLimitedTotal,
		)
	})
}
