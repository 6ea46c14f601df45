// Package metrics exposes Prometheus collectors for the evaluation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts evaluation sessions created.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proctor",
		Name:      "sessions_started_total",
		Help:      "Evaluation sessions started.",
	})

	// SessionsCompleted counts delivered verdicts by outcome.
	SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctor",
		Name:      "sessions_completed_total",
		Help:      "Evaluation sessions completed, by final status.",
	}, []string{"status"})

	// Violations counts recorded integrity violations by kind.
	Violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctor",
		Name:      "violations_total",
		Help:      "Integrity violations recorded, by kind.",
	}, []string{"kind"})

	// GradingFailures counts failed grading calls.
	GradingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proctor",
		Name:      "grading_failures_total",
		Help:      "Grading calls that returned an error.",
	})

	// LiveSessions tracks the number of sessions held in the registry.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "proctor",
		Name:      "live_sessions",
		Help:      "Sessions currently held in memory.",
	})
)
