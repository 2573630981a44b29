// Package metrics exposes Prometheus metrics for the token registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registry's Prometheus collectors.
type Metrics struct {
	TokensCreated *prometheus.CounterVec
	SupplyUpdates *prometheus.CounterVec
}

// New creates and registers the collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		TokensCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aurum_tokens_created_total",
			Help: "Tokens issued, by backing asset type.",
		}, []string{"asset_type"}),
		SupplyUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aurum_supply_updates_total",
			Help: "Applied supply updates, by operation.",
		}, []string{"op"}),
	}
}

// RecordTokenCreated counts one issued token.
func (m *Metrics) RecordTokenCreated(assetType string) {
	if m == nil {
		return
	}
	m.TokensCreated.WithLabelValues(assetType).Inc()
}

// RecordSupplyUpdate counts one applied supply update.
func (m *Metrics) RecordSupplyUpdate(op string) {
	if m == nil {
		return
	}
	m.SupplyUpdates.WithLabelValues(op).Inc()
}
