package approval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Approval outcomes used as the "outcome" label.
const (
	OutcomeApproved     = "approved"
	OutcomeBlocked      = "blocked"
	OutcomeStateChanged = "state_changed"
	OutcomeLockTimeout  = "lock_timeout"
	OutcomeConflict     = "version_conflict"
	OutcomeError        = "error"
)

// Metrics holds the approval counters.
//
// Metrics:
//   - phasegate_approvals_total{outcome} - approve attempts by outcome
//   - phasegate_phase_transitions_total{to} - committed phase status changes
type Metrics struct {
	ApprovalsTotal   *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ApprovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phasegate_approvals_total",
				Help: "Total number of phase approval attempts by outcome",
			},
			[]string{"outcome"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phasegate_phase_transitions_total",
				Help: "Total number of committed phase status transitions by target status",
			},
			[]string{"to"},
		),
	}
}

func (m *Metrics) approval(outcome string) {
	if m != nil {
		m.ApprovalsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) transition(to string) {
	if m != nil {
		m.TransitionsTotal.WithLabelValues(to).Inc()
	}
}
