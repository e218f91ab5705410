package connector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_webhook_responses_total",
		Help: "Webhook deliveries by response class",
	}, []string{"class"})

	webhookDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notifications_webhook_duration_seconds",
		Help:    "Webhook call latency",
		Buckets: prometheus.DefBuckets,
	})

	endpointsDisabledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_endpoints_disabled_total",
		Help: "Endpoints disabled after delivery failures",
	}, []string{"reason"})

	connectorMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_connector_messages_total",
		Help: "Messages published to connector services",
	}, []string{"connector", "stored_payload"})

	emailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_emails_total",
		Help: "Emails sent or aggregated",
	}, []string{"kind"})
)
