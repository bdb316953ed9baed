package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelrouter_jobs_submitted_total",
			Help: "Total number of training jobs accepted, by backend.",
		},
		[]string{"backend"},
	)

	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelrouter_jobs_finished_total",
			Help: "Total number of training jobs that reached a terminal state.",
		},
		[]string{"backend", "state"},
	)

	jobsThrottledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelrouter_jobs_throttled_total",
			Help: "Total number of job submissions rejected by admission control.",
		},
	)

	jobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelrouter_jobs_running",
			Help: "Number of training jobs currently holding a worker slot.",
		},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelrouter_job_duration_seconds",
			Help:    "Training job duration from start to terminal state.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(jobsSubmittedTotal)
	prometheus.MustRegister(jobsFinishedTotal)
	prometheus.MustRegister(jobsThrottledTotal)
	prometheus.MustRegister(jobsRunning)
	prometheus.MustRegister(jobDuration)
}
