package rbac

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decision outcomes recorded by the guard.
const (
	OutcomeAllowed         = "allowed"
	OutcomeDenied          = "denied"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
	OutcomeUndeclared      = "undeclared"
)

// Metrics exposes Prometheus collectors for authorization.
type Metrics struct {
	decisions       *prometheus.CounterVec
	lookups         *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	refreshFailures prometheus.Counter
}

// NewMetrics registers RBAC collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contracthub_rbac_decisions_total",
			Help: "Authorization decisions by outcome and match mode.",
		}, []string{"outcome", "mode"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contracthub_rbac_lookups_total",
			Help: "Effective permission lookups by source.",
		}, []string{"source"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "contracthub_rbac_view_refresh_duration_seconds",
			Help:    "Duration of materialized permission view refreshes.",
			Buckets: prometheus.DefBuckets,
		}),
		refreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contracthub_rbac_view_refresh_failures_total",
			Help: "Failed materialized permission view refreshes.",
		}),
	}
	registerer.MustRegister(m.decisions, m.lookups, m.refreshDuration, m.refreshFailures)
	return m
}

func (m *Metrics) observeDecision(outcome string, mode MatchMode) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome, mode.String()).Inc()
}

func (m *Metrics) observeLookup(source string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(source).Inc()
}

func (m *Metrics) observeRefresh(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(d.Seconds())
	if err != nil {
		m.refreshFailures.Inc()
	}
}
