// Package metrics provides Prometheus metrics for the queue engine and its
// scheduler. Everything is registered on Registry, exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for the service.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Sweep outcomes.
const (
	OutcomeMatched = "matched"
	OutcomeIdle    = "idle"
	OutcomeRace    = "race"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// =============================================================================
// Matching
// =============================================================================

// SweepsTotal counts sweep runs by outcome.
var SweepsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "queue",
	Name:      "sweeps_total",
	Help:      "Sweep invocations by outcome",
}, []string{"outcome"})

// MatchesTotal counts customers connected to a representative.
var MatchesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "queue",
	Name:      "matches_total",
	Help:      "Customers matched to a representative",
})

// SweepDurationSeconds tracks time spent inside the mutation gate per sweep.
var SweepDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "queue",
	Name:      "sweep_duration_seconds",
	Help:      "Time taken by one sweep",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
})

// =============================================================================
// Queue state
// =============================================================================

// WaitingEntries is the number of waiting entries after the last mutation.
var WaitingEntries = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "queue",
	Name:      "waiting_entries",
	Help:      "Entries currently waiting",
})

// AvailableAgents is the number of available representatives after the last mutation.
var AvailableAgents = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "queue",
	Name:      "available_agents",
	Help:      "Representatives currently available",
})

// JoinsTotal and LeavesTotal count facade operations.
var JoinsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "queue",
	Name:      "joins_total",
	Help:      "Successful queue joins",
})

var LeavesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "queue",
	Name:      "leaves_total",
	Help:      "Successful queue leaves",
})

// =============================================================================
// Notifications
// =============================================================================

// NotificationsTotal counts delivered events by name.
var NotificationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "notifications",
	Name:      "delivered_total",
	Help:      "Events handed to the transport",
}, []string{"event"})

// NotificationFailuresTotal counts failed deliveries by event name.
var NotificationFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "notifications",
	Name:      "failures_total",
	Help:      "Events the transport failed to deliver",
}, []string{"event"})
