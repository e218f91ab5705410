package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifications_service_call_duration_seconds",
		Help:    "Duration of outbound service calls, retries included",
		Buckets: prometheus.DefBuckets,
	}, []string{"client", "operation", "result"})

	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_service_call_attempts_total",
		Help: "Individual attempts made by outbound service calls",
	}, []string{"client", "operation"})
)
