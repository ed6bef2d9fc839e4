package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts remote ledger mutations by outcome.
type LedgerMetrics struct {
	increments  *prometheus.CounterVec
	userWrites  *prometheus.CounterVec
	redemptions *prometheus.CounterVec
	milestones  *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// Ledger returns the lazily-initialised ledger metrics registered on the
// default prometheus registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			increments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "referral",
				Subsystem: "ledger",
				Name:      "increments_total",
				Help:      "Driver counter increments segmented by counter and outcome.",
			}, []string{"field", "outcome"}),
			userWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "referral",
				Subsystem: "ledger",
				Name:      "user_writes_total",
				Help:      "User record writes segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "referral",
				Subsystem: "ledger",
				Name:      "redemption_credits_total",
				Help:      "Redemption credit attempts segmented by outcome (credited, duplicate, not_found, error).",
			}, []string{"outcome"}),
			milestones: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "referral",
				Subsystem: "payout",
				Name:      "milestones_total",
				Help:      "Payout milestones recorded by the sweep, by counter.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.increments,
			ledgerRegistry.userWrites,
			ledgerRegistry.redemptions,
			ledgerRegistry.milestones,
		)
	})
	return ledgerRegistry
}

// ObserveIncrement records one counter increment attempt.
func (m *LedgerMetrics) ObserveIncrement(field, outcome string) {
	if m == nil {
		return
	}
	m.increments.WithLabelValues(field, outcome).Inc()
}

// ObserveUserWrite records a set/update of a user record.
func (m *LedgerMetrics) ObserveUserWrite(op, outcome string) {
	if m == nil {
		return
	}
	m.userWrites.WithLabelValues(op, outcome).Inc()
}

// ObserveRedemption records a redemption credit attempt.
func (m *LedgerMetrics) ObserveRedemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

// ObserveMilestone records a newly reached payout milestone.
func (m *LedgerMetrics) ObserveMilestone(kind string) {
	if m == nil {
		return
	}
	m.milestones.WithLabelValues(kind).Inc()
}
