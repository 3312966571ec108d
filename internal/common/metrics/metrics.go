// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_scans_total",
			Help: "Scans by final outcome (matched, not_found, ocr_failed)",
		},
		[]string{"outcome"},
	)

	LevelVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_match_level_verdicts_total",
			Help: "Validation verdicts per query level",
		},
		[]string{"level", "reason"},
	)

	CatalogSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_search_duration_seconds",
			Help:    "Catalog search latency per backend",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend"},
	)

	CatalogSearchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_search_failures_total",
			Help: "Failed catalog searches per backend",
		},
		[]string{"backend"},
	)

	QueryCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_query_cache_lookups_total",
			Help: "Query cache lookups by backend and result (hit, miss)",
		},
		[]string{"backend", "result"},
	)
)
