package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darilo",
		Subsystem: "coordinator",
		Name:      "operations_total",
		Help:      "Coordinator operations by operation and result code.",
	}, []string{"op", "result"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "darilo",
		Subsystem: "coordinator",
		Name:      "operation_duration_seconds",
		Help:      "Coordinator operation latency including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darilo",
		Subsystem: "coordinator",
		Name:      "retries_total",
		Help:      "Retries after a concurrent modification.",
	}, []string{"op"})

	reconcilePending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "darilo",
		Subsystem: "reconcile",
		Name:      "pending_tasks",
		Help:      "Dependent updates waiting for reconciliation.",
	})

	reconcileApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darilo",
		Subsystem: "reconcile",
		Name:      "tasks_total",
		Help:      "Reconciliation task attempts by kind and result.",
	}, []string{"kind", "result"})
)
