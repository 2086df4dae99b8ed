package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts gateway traffic. A nil *Metrics records nothing.
type Metrics struct {
	outcomes *prometheus.CounterVec
	attempts *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewMetrics registers the dispatch collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_dispatch_outcomes_total",
			Help: "Per-token dispatch outcomes.",
		}, []string{"result"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "broadcast_gateway_sends_total",
			Help: "Gateway send attempts by response class.",
		}, []string{"class"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "broadcast_gateway_send_duration_seconds",
			Help:    "Duration of a single gateway send.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeAttempt(class string, seconds float64) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(class).Inc()
	m.latency.Observe(seconds)
}

func (m *Metrics) observeOutcome(o Outcome) {
	if m == nil {
		return
	}
	result := "failed"
	if o.Succeeded {
		result = "succeeded"
	}
	m.outcomes.WithLabelValues(result).Inc()
}
