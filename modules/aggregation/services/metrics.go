package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregation",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Aggregation cache lookups broken down by outcome.",
	}, []string{"outcome"})

	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aggregation",
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Wholesale cache invalidations triggered by record writes.",
	})

	aggregationsComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aggregation",
		Subsystem: "engine",
		Name:      "computed_total",
		Help:      "Aggregations computed broken down by result.",
	}, []string{"result"})
)

func recordCacheHit() {
	cacheRequests.WithLabelValues("hit").Inc()
}

func recordCacheMiss() {
	cacheRequests.WithLabelValues("miss").Inc()
}

func recordCacheInvalidation() {
	cacheInvalidations.Inc()
}

func recordAggregation(result string) {
	aggregationsComputed.WithLabelValues(result).Inc()
}
