// Package metrics exposes minting workflow counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	outcomes *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aurum_minting_requests_total",
			Help: "Minting requests reaching a state, by status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) RecordOutcome(status string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(status).Inc()
}
