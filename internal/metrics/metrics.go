package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	productImport = "product_import"

	jobsSubmittedTotal  = "jobs_submitted_total"
	jobsFinishedTotal   = "jobs_finished_total"
	jobRetriesTotal     = "job_retries_total"
	jobsDeadLetterTotal = "jobs_dead_lettered_total"
	jobsDiscardedTotal  = "jobs_discarded_total"
	jobsDeferredTotal   = "jobs_deferred_total"
	jobDurationSeconds  = "job_duration_seconds"
	rowsProcessedTotal  = "rows_processed_total"
	rowErrorsTotal      = "row_errors_total"
	jobsInFlight        = "jobs_in_flight"

	// Labels
	statusLabel = "status"
	reasonLabel = "reason"
	kindLabel   = "kind"
)

/**
* Metrics definition
**/
var jobsSubmittedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: productImport,
		Name:      jobsSubmittedTotal,
		Help:      "number of import jobs submitted, by outcome of the submission",
	},
	[]string{statusLabel},
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: productImport,
		Name:      jobsFinishedTotal,
		Help:      "number of import jobs that reached a terminal status",
	},
	[]string{statusLabel},
)

var jobRetriesMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: productImport,
		Name:      jobRetriesTotal,
		Help:      "number of job messages scheduled for another attempt",
	},
)

var jobsDeadLetterMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: productImport,
		Name:      jobsDeadLetterTotal,
		Help:      "number of job messages routed to the dead-letter queue",
	},
	[]string{reasonLabel},
)

var jobsDiscardedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: productImport,
		Name:      jobsDiscardedTotal,
		Help:      "number of job messages acknowledged without processing",
	},
	[]string{reasonLabel},
)

var jobsDeferredMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: productImport,
		Name:      jobsDeferredTotal,
		Help:      "number of job messages parked because another claim on the job is still live",
	},
)

var jobDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: productImport,
		Name:      jobDurationSeconds,
		Help:      "time spent processing an import job, by terminal status",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	},
	[]string{statusLabel},
)

var rowsProcessedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: productImport,
		Name:      rowsProcessedTotal,
		Help:      "number of data rows validated",
	},
)

var rowErrorsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: productImport,
		Name:      rowErrorsTotal,
		Help:      "number of cell validation errors, by error kind",
	},
	[]string{kindLabel},
)

var jobsInFlightMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: productImport,
		Name:      jobsInFlight,
		Help:      "number of import jobs currently being processed",
	},
)

func IncreaseJobsSubmittedMetric(status string) {
	jobsSubmittedMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseJobsFinishedMetric(status string) {
	jobsFinishedMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseJobRetriesMetric() {
	jobRetriesMetric.Inc()
}

func IncreaseDeadLetterMetric(reason string) {
	jobsDeadLetterMetric.With(prometheus.Labels{reasonLabel: reason}).Inc()
}

func IncreaseDiscardedMetric(reason string) {
	jobsDiscardedMetric.With(prometheus.Labels{reasonLabel: reason}).Inc()
}

func IncreaseDeferredMetric() {
	jobsDeferredMetric.Inc()
}

func ObserveJobDuration(status string, seconds float64) {
	jobDurationMetric.With(prometheus.Labels{statusLabel: status}).Observe(seconds)
}

func AddRowsProcessed(n int) {
	rowsProcessedMetric.Add(float64(n))
}

func IncreaseRowErrorsMetric(kind string) {
	rowErrorsMetric.With(prometheus.Labels{kindLabel: kind}).Inc()
}

func JobStarted() {
	jobsInFlightMetric.Inc()
}

func JobDone() {
	jobsInFlightMetric.Dec()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedMetric)
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(jobRetriesMetric)
	prometheus.MustRegister(jobsDeadLetterMetric)
	prometheus.MustRegister(jobsDiscardedMetric)
	prometheus.MustRegister(jobsDeferredMetric)
	prometheus.MustRegister(jobDurationMetric)
	prometheus.MustRegister(rowsProcessedMetric)
	prometheus.MustRegister(rowErrorsMetric)
	prometheus.MustRegister(jobsInFlightMetric)
}
