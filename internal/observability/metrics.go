package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lumen_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ClapsTotal counts clap calls by whether they created the like row.
	ClapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_claps_total",
		Help: "Total clap operations by outcome",
	}, []string{"outcome"})

	// ViewRegistrations counts unique-view registrations by result.
	ViewRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_view_registrations_total",
		Help: "Unique view registrations by result (unique, repeat, dropped)",
	}, []string{"result"})

	// SyncEvents counts index synchronization events by kind and outcome.
	SyncEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_index_sync_events_total",
		Help: "Index synchronization events by kind and outcome",
	}, []string{"kind", "outcome"})

	// SyncAttempts counts individual index calls, including retries.
	SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_index_sync_attempts_total",
		Help: "Index calls made by the synchronizer, including retries",
	}, []string{"kind", "result"})

	// SyncLatency records the time from enqueue to final outcome.
	SyncLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lumen_index_sync_latency_seconds",
		Help:    "Time from enqueue to final synchronization outcome",
		Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	// SyncQueueDepth is the number of events waiting for a worker.
	SyncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lumen_index_sync_queue_depth",
		Help: "Events waiting in the synchronization queue",
	})

	// ReconcileRuns counts reconciliation sweeps and the events they enqueued.
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_index_reconcile_total",
		Help: "Reconciliation sweeps by result",
	}, []string{"result"})
)

// Sync outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeStale     = "stale"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
	OutcomeQueueFull = "queue_full"
)

// ObserveQuery records the latency of a database query.
func ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		ObserveQuery(operation, table, start)
	}
}
