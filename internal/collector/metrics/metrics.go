package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the collector.
type Metrics struct {
	Received       prometheus.Counter
	Duplicates     prometheus.Counter
	Rejected       *prometheus.CounterVec
	PublishFailure prometheus.Counter
	Scores         prometheus.Histogram
}

// New registers collector metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Received: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_collector_audits_received_total",
			Help: "Total number of audit submissions accepted",
		}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_collector_audits_duplicate_total",
			Help: "Total number of resubmitted audits acknowledged without storing",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "innexbot_collector_audits_rejected_total",
			Help: "Total number of audit submissions rejected, by reason",
		}, []string{"reason"}),
		PublishFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "innexbot_collector_publish_failures_total",
			Help: "Total number of accepted audits that could not be published",
		}),
		Scores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "innexbot_collector_audit_score",
			Help:    "Distribution of accepted audit scores",
			Buckets: []float64{20, 40, 60, 80, 100},
		}),
	}
}

func (m *Metrics) IncReceived()              { m.Received.Inc() }
func (m *Metrics) IncDuplicates()            { m.Duplicates.Inc() }
func (m *Metrics) IncRejected(reason string) { m.Rejected.WithLabelValues(reason).Inc() }
func (m *Metrics) IncPublishFailure()        { m.PublishFailure.Inc() }
func (m *Metrics) ObserveScore(score int)    { m.Scores.Observe(float64(score)) }
