package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the service exports.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	DeliveriesTotal     *prometheus.CounterVec
	FinalizationsTotal  *prometheus.CounterVec
	DispatchedTotal     prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered, which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_deliveries_total",
				Help: "Simulated recipient deliveries by outcome",
			},
			[]string{"outcome"},
		),
		FinalizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_finalizations_total",
				Help: "Campaigns moved to a terminal status",
			},
			[]string{"status"},
		),
		DispatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaign_delivery_jobs_dispatched_total",
				Help: "Delivery jobs published to the queue",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.DeliveriesTotal,
			m.FinalizationsTotal,
			m.DispatchedTotal,
		)
	}
	return m
}
