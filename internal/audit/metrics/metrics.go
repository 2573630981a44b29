// Package metrics exposes reconciliation counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	audits          *prometheus.CounterVec
	invariantAlerts prometheus.Counter
	stuckRequests   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		audits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aurum_audits_total",
			Help: "Reconciliation runs, by outcome status.",
		}, []string{"status"}),
		invariantAlerts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aurum_audit_invariant_alerts_total",
			Help: "Audits that found supply/reserve conservation broken.",
		}),
		stuckRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aurum_audit_stuck_requests_total",
			Help: "PROCESSING requests surfaced as stuck.",
		}),
	}
}

func (m *Metrics) RecordAudit(status string) {
	if m == nil {
		return
	}
	m.audits.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordInvariantAlert() {
	if m == nil {
		return
	}
	m.invariantAlerts.Inc()
}

func (m *Metrics) RecordStuck(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stuckRequests.Add(float64(n))
}
