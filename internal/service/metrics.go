package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_events_processed_total",
		Help: "Inbound events by processing result",
	}, []string{"result"})

	statusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_connector_status_updates_total",
		Help: "Delivery status callbacks by recorded status",
	}, []string{"status"})
)
