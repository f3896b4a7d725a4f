package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_ratelimit_decisions_total",
			Help: "Rate limit decisions by endpoint class and result (allowed, denied)",
		}, []string{"class", "result"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bloodlink_ratelimit_store_errors_total",
			Help: "Bucket store failures; requests are let through when this happens",
		}),
	}
}

func (m *Metrics) IncrementDecision(class string, allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.Decisions.WithLabelValues(class, result).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}
