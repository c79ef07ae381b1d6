package training

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "iotml",
		Subsystem: "training",
		Name:      "jobs_created_total",
		Help:      "Training jobs accepted into the job store",
	})

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iotml",
			Subsystem: "training",
			Name:      "jobs_finished_total",
			Help:      "Training jobs reaching a terminal status",
		},
		[]string{"status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iotml",
			Subsystem: "training",
			Name:      "job_duration_seconds",
			Help:      "Wall time of finished training runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"model_type"},
	)

	activeJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "iotml",
		Subsystem: "training",
		Name:      "active_jobs",
		Help:      "Training runs currently executing",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "iotml",
		Subsystem: "training",
		Name:      "queue_depth",
		Help:      "Jobs waiting for a training worker",
	})
)

func init() {
	prometheus.MustRegister(jobsCreated, jobsFinished, jobDuration, activeJobs, queueDepth)
}
