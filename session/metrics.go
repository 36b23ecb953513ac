package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BootstrapTotal counts bootstrap outcomes: restored, refreshed, anonymous, failed.
	BootstrapTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "session",
			Name:      "bootstrap_total",
			Help:      "Total number of session bootstraps by outcome",
		},
		[]string{"outcome"},
	)

	// LoginsTotal counts login attempts by outcome.
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "console",
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)
)
