package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	partitionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partition",
		Subsystem: "manager",
		Name:      "created_total",
		Help:      "Total number of partitions registered broken down by strategy.",
	}, []string{"strategy"})

	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "partition",
		Subsystem: "manager",
		Name:      "sweep_runs_total",
		Help:      "Total number of retention sweeps executed.",
	})

	sweepActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partition",
		Subsystem: "manager",
		Name:      "sweep_actions_total",
		Help:      "Partitions archived or dropped by retention sweeps.",
	}, []string{"action"})
)

func recordPartitionCreated(strategy string) {
	partitionsCreated.WithLabelValues(strategy).Inc()
}

func recordSweepRun() {
	sweepRuns.Inc()
}

func recordSweepAction(action string) {
	sweepActions.WithLabelValues(action).Inc()
}
