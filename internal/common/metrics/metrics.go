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
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: prometheus.DefBuckets,
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

	FilterCompilations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_filter_compilations_total",
			Help: "Filter compilations by mode (direct, faceted, school)",
		},
		[]string{"mode"},
	)

	FilterRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_filter_rejections_total",
			Help: "Filter inputs rejected as malformed, by field",
		},
		[]string{"field"},
	)

	SearchRequeries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listing_search_requeries_total",
			Help: "Searches re-issued with a larger overfetch window",
		},
	)

	SearchRowsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_search_rows_discarded_total",
			Help: "Candidate rows dropped by post-filtering, by reason",
		},
		[]string{"reason"},
	)
)

// CompilationMode labels a compiled search for FilterCompilations.
func CompilationMode(isDirectLookup, hasSchoolFilters bool) string {
	switch {
	case isDirectLookup:
		return "direct"
	case hasSchoolFilters:
		return "school"
	default:
		return "faceted"
	}
}
