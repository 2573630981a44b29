// Package metrics exposes reserve ledger counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	actionsApplied *prometheus.CounterVec
	actionsDenied  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		actionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aurum_reserve_actions_total",
			Help: "Reserve actions applied, by action.",
		}, []string{"action"}),
		actionsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aurum_reserve_actions_denied_total",
			Help: "Reserve actions denied for insufficient funds, by action.",
		}, []string{"action"}),
	}
}

func (m *Metrics) RecordApplied(action string) {
	if m == nil {
		return
	}
	m.actionsApplied.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordDenied(action string) {
	if m == nil {
		return
	}
	m.actionsDenied.WithLabelValues(action).Inc()
}
