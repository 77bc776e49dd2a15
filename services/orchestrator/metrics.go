package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPrints = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printrig_prints_total",
		Help: "Dispatched print jobs by terminal outcome.",
	}, []string{"outcome"})

	metricRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printrig_retries_total",
		Help: "Print attempts retried after a failure or timeout.",
	})

	metricCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printrig_cycles_completed_total",
		Help: "Completed passes through the test image set.",
	})

	metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printrig_runs_total",
		Help: "Test runs by terminal state.",
	}, []string{"state"})

	metricActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "printrig_active_runs",
		Help: "Runs currently in a non-terminal state.",
	})
)
