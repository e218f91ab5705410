package dedup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	duplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_duplicate_events_total",
		Help: "Events dropped because their deduplication key was already recorded",
	}, []string{"bundle", "application"})

	messageIDsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_message_ids_total",
		Help: "Inbound message ids by validity",
	}, []string{"result"})
)
