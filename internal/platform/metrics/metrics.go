package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds HTTP level Prometheus metrics for the collector.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	Requests        *prometheus.CounterVec
}

// New creates and registers the HTTP metrics. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "innexbot_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "innexbot_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
	m.Requests.WithLabelValues(method, route, status).Inc()
}
