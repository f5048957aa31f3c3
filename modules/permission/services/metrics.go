package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	permissionDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permission",
		Subsystem: "resolver",
		Name:      "denials_total",
		Help:      "Total number of access denials broken down by resource type.",
	}, []string{"resource_type"})

	permissionGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "permission",
		Subsystem: "resolver",
		Name:      "grants_total",
		Help:      "Total number of grants issued broken down by level.",
	}, []string{"level"})
)

func recordAccessDenied(resourceType string) {
	if resourceType == "" {
		resourceType = "unknown"
	}
	permissionDenials.WithLabelValues(resourceType).Inc()
}

func recordGrantIssued(level string) {
	permissionGrants.WithLabelValues(level).Inc()
}
