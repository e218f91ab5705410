package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_scheduled_job_runs_total",
		Help: "Scheduled job runs by job and result",
	}, []string{"job", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifications_scheduled_job_duration_seconds",
		Help:    "Scheduled job duration",
		Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
	}, []string{"job"})
)
