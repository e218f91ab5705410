package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_ingress_messages_total",
		Help: "Inbound log messages by outcome",
	}, []string{"outcome"})

	reclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_ingress_reclaimed_total",
		Help: "Stale pending messages claimed from dead consumers",
	})
)
