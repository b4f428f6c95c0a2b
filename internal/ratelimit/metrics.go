package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks   prometheus.Counter
	Rejected prometheus.Counter
	Errors   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_ratelimit_checks_total",
			Help: "Total number of rate limit checks",
		}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_ratelimit_rejected_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
		Errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_ratelimit_errors_total",
			Help: "Total number of rate limit checks that failed open",
		}),
	}
}
