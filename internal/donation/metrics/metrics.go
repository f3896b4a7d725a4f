package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the donation request engine.
type Metrics struct {
	RequestsCreated    prometheus.Counter
	Transitions        *prometheus.CounterVec
	AcceptOutcomes     *prometheus.CounterVec
	SideEffectFailures *prometheus.CounterVec
	ReconcileJobs      *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
}

// New creates a new Metrics instance with all donation metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bloodlink_donation_requests_created_total",
			Help: "Total number of donation requests created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_donation_transitions_total",
			Help: "Committed status transitions by source and target status",
		}, []string{"from", "to"}),
		AcceptOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_donation_accept_outcomes_total",
			Help: "Acceptance attempts by outcome code",
		}, []string{"outcome"}),
		SideEffectFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_donation_side_effect_failures_total",
			Help: "Post-commit side effects that failed (audit, notification, donor_record)",
		}, []string{"effect"}),
		ReconcileJobs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodlink_donation_reconcile_jobs_total",
			Help: "Donor record reconciliation jobs by result",
		}, []string{"result"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bloodlink_donation_operation_duration_seconds",
			Help:    "Duration of donation service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementRequestsCreated() {
	m.RequestsCreated.Inc()
}

func (m *Metrics) IncrementTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

// IncrementAcceptOutcome records an acceptance result; use "accepted" on success
// and the error code otherwise.
func (m *Metrics) IncrementAcceptOutcome(outcome string) {
	m.AcceptOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementSideEffectFailure(effect string) {
	m.SideEffectFailures.WithLabelValues(effect).Inc()
}

func (m *Metrics) IncrementReconcileJob(result string) {
	m.ReconcileJobs.WithLabelValues(result).Inc()
}

// ObserveOperation records the duration of a service operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
