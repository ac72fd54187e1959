// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	// HTTPRequestsTotal counts API requests by method, route pattern and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes API request latency by method and route pattern.
	HTTPRequestDuration *prometheus.HistogramVec

	// TransitionsTotal counts state-machine transitions by from/to state.
	TransitionsTotal *prometheus.CounterVec

	// SweepDuration observes the duration of waiting-request sweeps.
	SweepDuration prometheus.Histogram
)

// Register initializes the collectors and registers them with reg (the
// default registerer when nil). Safe to call more than once.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keywarden_http_requests_total",
			Help: "Total API requests processed.",
		}, []string{"method", "route", "status"})

		HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keywarden_http_request_duration_seconds",
			Help:    "API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keywarden_request_transitions_total",
			Help: "Access-request state transitions.",
		}, []string{"from", "to"})

		SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "keywarden_sweep_duration_seconds",
			Help:    "Duration of waiting-request sweeps.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		})

		reg.MustRegister(HTTPRequestsTotal, HTTPRequestDuration, TransitionsTotal, SweepDuration)
	})
}

// ObserveTransition increments the transition counter if metrics are registered.
func ObserveTransition(from, to string) {
	if TransitionsTotal != nil {
		TransitionsTotal.WithLabelValues(from, to).Inc()
	}
}
