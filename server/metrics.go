package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConsolesActive is the number of browser consoles held in memory.
	ConsolesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "console",
			Subsystem: "web",
			Name:      "consoles_active",
			Help:      "Number of browser consoles held in memory",
		},
	)

	// PageRequestsTotal counts console page requests by method and status.
	PageRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "web",
			Name:      "requests_total",
			Help:      "Total number of console HTTP requests",
		},
		[]string{"method", "status"},
	)

	// GuardDecisionsTotal counts route guard outcomes.
	GuardDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "web",
			Name:      "guard_decisions_total",
			Help:      "Total number of route guard decisions by outcome",
		},
		[]string{"outcome"},
	)

	// LoginThrottledTotal counts sign-in and reset submissions rejected by the throttle.
	LoginThrottledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "web",
			Name:      "login_throttled_total",
			Help:      "Total number of throttled sign-in attempts",
		},
	)
)
