package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit delivery.
type Metrics struct {
	Delivered    prometheus.Counter
	Attempts     prometheus.Counter
	Rejected     prometheus.Counter
	Queued       prometheus.Counter
	Evicted      prometheus.Counter
	Dropped      prometheus.Counter
	Skipped      prometheus.Counter
	QueueDepth   prometheus.Gauge
	BreakerState prometheus.Gauge
}

// NewMetrics registers delivery metrics with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Delivered: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_delivery_delivered_total",
			Help: "Total number of audit documents accepted by the collector",
		}),
		Attempts: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_delivery_attempts_total",
			Help: "Total number of send attempts, direct and from the retry queue",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_delivery_rejected_total",
			Help: "Total number of documents rejected with a non-retryable error",
		}),
		Queued: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_delivery_queued_total",
			Help: "Total number of documents parked in the retry queue",
		}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_delivery_queue_evicted_total",
			Help: "Total number of queue entries evicted on overflow",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_delivery_queue_dropped_total",
			Help: "Total number of queue entries dropped after exhausting redelivery attempts",
		}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_delivery_skipped_total",
			Help: "Total number of documents not sent because data sharing is disabled",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "innexbot_delivery_queue_depth",
			Help: "Number of entries in the retry queue after the last mutation",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "innexbot_delivery_circuit_breaker_state",
			Help: "Collector circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) IncDelivered() { m.Delivered.Inc() }
func (m *Metrics) IncAttempts()  { m.Attempts.Inc() }
func (m *Metrics) IncRejected()  { m.Rejected.Inc() }
func (m *Metrics) IncQueued()    { m.Queued.Inc() }
func (m *Metrics) IncSkipped()   { m.Skipped.Inc() }

func (m *Metrics) AddEvicted(n int) { m.Evicted.Add(float64(n)) }
func (m *Metrics) AddDropped(n int) { m.Dropped.Add(float64(n)) }

func (m *Metrics) SetQueueDepth(n int) { m.QueueDepth.Set(float64(n)) }

// SetBreakerState sets the circuit breaker gauge.
func (m *Metrics) SetBreakerState(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
