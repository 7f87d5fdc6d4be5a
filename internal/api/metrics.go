// Package api exposes the registry's command/query surface over HTTP.
// Metrics registration follows the teacher's internal/api convention
// (access_metrics_handlers.go): a sync.Once-guarded init function
// building namespaced prometheus collectors and registering them once
// per process.
package api

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
)

func initMetrics() {
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcassure",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled, by route and status class.",
		},
		[]string{"route", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "svcassure",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Request handling latency in seconds, by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	prometheus.MustRegister(requestsTotal, requestDuration)
}

func ensureMetrics() {
	metricsOnce.Do(initMetrics)
}

func recordRequest(route, statusClass string, seconds float64) {
	ensureMetrics()
	requestsTotal.WithLabelValues(route, statusClass).Inc()
	requestDuration.WithLabelValues(route).Observe(seconds)
}
