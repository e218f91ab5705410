package aggregation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aggregationWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_aggregation_writes_total",
		Help: "Digest rows written, by outcome",
	}, []string{"result"})

	digestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_digests_total",
		Help: "Digest runs per aggregation key, by outcome",
	}, []string{"result"})
)
