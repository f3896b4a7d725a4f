package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for notification fan-out.
type Metrics struct {
	Enqueued         *prometheus.CounterVec
	Dropped          *prometheus.CounterVec
	Parked           *prometheus.CounterVec
	Redelivered      *prometheus.CounterVec
	Delivered        prometheus.Counter
	DeliveryFailures prometheus.Counter
	QueueDepth       prometheus.Gauge
	BreakerState     prometheus.Gauge
}

// NewMetrics registers the notification metrics. Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		Enqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_notification_payloads_enqueued_total",
			Help: "Notification payloads accepted for fan-out, by kind",
		}, []string{"kind"}),
		Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_notification_dropped_total",
			Help: "Notification payloads or messages dropped, by reason",
		}, []string{"reason"}),
		Parked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_notification_parked_total",
			Help: "Notification payloads or messages parked for redelivery, by reason",
		}, []string{"reason"}),
		Redelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_notification_redelivery_total",
			Help: "Redelivery attempts on parked notification work, by result",
		}, []string{"result"}),
		Delivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bloodlink_notification_messages_delivered_total",
			Help: "Messages accepted by the notification sink",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bloodlink_notification_delivery_failures_total",
			Help: "Failed sink delivery attempts",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bloodlink_notification_queue_depth",
			Help: "Payloads waiting for a fan-out worker",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bloodlink_notification_sink_circuit_state",
			Help: "Sink circuit breaker state (0=closed, 1=open)",
		}),
	}
}

const (
	dropQueueFull   = "queue_full"
	dropCircuitOpen = "circuit_open"
	dropExhausted   = "retries_exhausted"
	dropResolve     = "resolve_failed"
	dropShutdown    = "shutdown"
)

func (m *Metrics) incEnqueued(kind Kind) {
	if m != nil {
		m.Enqueued.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) addDropped(reason string, n int) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) addParked(reason string, n int) {
	if m != nil {
		m.Parked.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) incRedelivered(result string) {
	if m != nil {
		m.Redelivered.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) addDelivered(n int) {
	if m != nil {
		m.Delivered.Add(float64(n))
	}
}

func (m *Metrics) incDeliveryFailures() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
