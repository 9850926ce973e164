// Package metrics declares the runner's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "robotrainer"
	subsystem = "runner"
)

// Failure reasons used as the "reason" label of SimulationsFailedCount.
const (
	ReasonStage   = "stage"
	ReasonTrainer = "trainer"
	ReasonStore   = "store"
	ReasonPanic   = "panic"
)

// Variables declared for metrics.
var (
	SimulationsClaimedCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "simulations_claimed_total",
		Help:      "Counter of the number of simulations claimed by the runner.",
	})

	SimulationsCompletedCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "simulations_completed_total",
		Help:      "Counter of the number of simulations completed.",
	})

	SimulationsFailedCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "simulations_failed_total",
		Help:      "Counter of the number of simulations marked failed.",
	}, []string{"reason"})

	ClaimConflictCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "claim_conflict_total",
		Help:      "Counter of the number of claims lost to another actor.",
	})

	PollErrorCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "poll_error_total",
		Help:      "Counter of the number of failed poll cycles.",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stage_duration_seconds",
		Help:      "Histogram of the time spent in each pipeline stage.",
		Buckets:   []float64{0.5, 1, 2, 4, 6, 8, 12, 20},
	}, []string{"stage"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
