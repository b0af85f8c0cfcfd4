package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache-aside lookups by endpoint and outcome (hit|miss|bypass).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consoleblue_cache_lookups_total",
			Help: "Total number of cache lookups on the GitHub read path",
		},
		[]string{"endpoint", "outcome"},
	)

	// CacheInvalidations counts cache rows removed by scope (repo|key|sweep).
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consoleblue_cache_invalidations_total",
			Help: "Total number of cache entries invalidated",
		},
		[]string{"scope"},
	)

	// SyncCycles counts full sync cycles by result (success|aborted).
	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consoleblue_sync_cycles_total",
			Help: "Total number of background sync cycles",
		},
		[]string{"result"},
	)

	// SyncProjectErrors counts per-project failures recorded during sync cycles.
	SyncProjectErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consoleblue_sync_project_errors_total",
			Help: "Total number of per-project sync failures",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consoleblue_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
