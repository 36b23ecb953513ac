package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts backend requests by method and status ("error" for transport failures).
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of backend API requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration measures backend request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "console",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// RefreshTotal counts token refresh attempts by outcome.
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "api",
			Name:      "token_refresh_total",
			Help:      "Total number of token refresh attempts",
		},
		[]string{"outcome"},
	)

	// RedirectsTotal counts login redirects issued after unrecoverable 401s.
	RedirectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "api",
			Name:      "login_redirects_total",
			Help:      "Total number of redirects to the login route",
		},
	)
)

func recordRefresh(outcome string) {
	RefreshTotal.WithLabelValues(outcome).Inc()
}
