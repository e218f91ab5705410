package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_deliveries_total",
		Help: "Endpoint deliveries by endpoint type and recorded status",
	}, []string{"endpoint_type", "status"})

	deliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifications_delivery_duration_seconds",
		Help:    "Time spent delivering to one endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint_type"})

	connectorPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_connector_panics_total",
		Help: "Connector panics recovered by the dispatcher",
	}, []string{"endpoint_type"})
)
