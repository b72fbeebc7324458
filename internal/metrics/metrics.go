// Package metrics defines the Prometheus metrics for toolgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the policy engine.
// Pass to components that need to record metrics.
type Metrics struct {
	DecisionsTotal       *prometheus.CounterVec
	RulesLoaded          prometheus.Gauge
	LoadErrorsTotal      *prometheus.CounterVec
	IntegrityChecksTotal *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "decisions_total",
				Help:      "Total tool-call decisions by outcome",
			},
			[]string{"action"}, // action=allow/deny/ask_user
		),
		RulesLoaded: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "toolgate",
				Name:      "rules_loaded",
				Help:      "Number of rules in the active snapshot",
			},
		),
		LoadErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "load_errors_total",
				Help:      "Total rule-loading errors by type",
			},
			[]string{"type"},
		),
		IntegrityChecksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "integrity_checks_total",
				Help:      "Total integrity checks by status",
			},
			[]string{"status"}, // status=match/mismatch/new
		),
		CacheHitsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "decision_cache_hits_total",
				Help:      "Decision cache hits",
			},
		),
		CacheMissesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "toolgate",
				Name:      "decision_cache_misses_total",
				Help:      "Decision cache misses",
			},
		),
	}
}
