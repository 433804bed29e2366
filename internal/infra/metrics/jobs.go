package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		processingAttemptsTotal,
		processingDuration,
		jobRunsTotal,
	)
}

var (
	processingAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_processing_attempts_total",
			Help: "Calls to the backend processing API by outcome.",
		},
		[]string{"outcome"}, // 'ok', 'retry', 'failed'
	)

	processingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoice_processing_duration_seconds",
			Help:    "End-to-end duration of a processing hand-off including retries.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"result"},
	)

	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Scheduled job runs by job name and status.",
		},
		[]string{"job", "status"}, // status: 'ok', 'error'
	)
)

func IncProcessingAttempt(outcome string) {
	processingAttemptsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveProcessing(result string, d time.Duration) {
	processingDuration.WithLabelValues(norm(result)).Observe(d.Seconds())
}

func IncJobRun(job, status string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}
