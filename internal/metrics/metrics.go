// Package metrics registers the Prometheus instruments shared by both
// services. Collectors are package-level and registered once at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "funds_transfer"

var (
	// HTTPRequestDuration observes inbound request latency per route.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of handled HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// TransfersTotal counts finished transfer sagas by outcome
	// (completed, rejected, failed).
	TransfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_total",
		Help:      "Transfer sagas by terminal outcome.",
	}, []string{"outcome"})

	// CompensationsTotal counts compensation attempts after a partial
	// failure, by result.
	CompensationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "compensations_total",
		Help:      "Compensating actions issued after a failed saga step.",
	}, []string{"action", "result"})
)

func init() {
	prometheus.MustRegister(HTTPRequestDuration, TransfersTotal, CompensationsTotal)
}
