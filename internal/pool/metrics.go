package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// workersAlive tracks the number of live workers.
	workersAlive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rankd",
			Subsystem: "pool",
			Name:      "workers_alive",
			Help:      "Number of live embedding workers",
		},
	)

	// tasksTotal counts submitted embedding tasks.
	tasksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rankd",
			Subsystem: "pool",
			Name:      "tasks_total",
			Help:      "Total number of embedding tasks submitted to the pool",
		},
	)

	// retriesTotal counts tasks retried on a different worker.
	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rankd",
			Subsystem: "pool",
			Name:      "task_retries_total",
			Help:      "Total number of tasks retried on a different worker after failure or timeout",
		},
	)

	// retirementsTotal counts workers retired for memory or crash reasons.
	retirementsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rankd",
			Subsystem: "pool",
			Name:      "worker_retirements_total",
			Help:      "Total number of workers retired and replaced",
		},
	)

	// queueDepth tracks tasks currently queued or executing.
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rankd",
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Tasks currently queued or executing across all workers",
		},
	)

	// fallbackTotal counts synchronous non-pooled embedding calls.
	fallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rankd",
			Subsystem: "pool",
			Name:      "sync_fallback_total",
			Help:      "Total number of embedding calls served by the synchronous fallback path",
		},
	)
)
