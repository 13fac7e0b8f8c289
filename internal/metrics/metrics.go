// Package metrics exposes Prometheus instrumentation for Tradeproof.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Cross-check runs by verdict
	CrossChecks *prometheus.CounterVec

	// Individual check results by severity
	CheckResults *prometheus.CounterVec

	// Cross-check latency, engine plus persistence
	CrossCheckLatency prometheus.Histogram

	// Readiness scores by verdict
	ReadinessScores *prometheus.CounterVec

	// Audit appends and chain verifications
	AuditAppends       prometheus.Counter
	ChainVerifications *prometheus.CounterVec

	// Rate limiter rejections
	RateLimited prometheus.Counter
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CrossChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeproof_crosscheck_total",
			Help: "Total cross-check runs by verdict",
		}, []string{"verdict"}),

		CheckResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeproof_check_results_total",
			Help: "Total individual check results by severity",
		}, []string{"severity"}),

		CrossCheckLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeproof_crosscheck_duration_seconds",
			Help:    "Duration of a cross-check including report persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		ReadinessScores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeproof_readiness_total",
			Help: "Total readiness assessments by verdict",
		}, []string{"verdict"}),

		AuditAppends: f.NewCounter(prometheus.CounterOpts{
			Name: "tradeproof_audit_appends_total",
			Help: "Total audit events appended",
		}),

		ChainVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeproof_chain_verifications_total",
			Help: "Total audit chain verifications by outcome",
		}, []string{"outcome"}), // outcome: "valid", "broken_link", "tampered_payload"

		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "tradeproof_rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		}),
	}
}

// ObserveCrossCheck records one cross-check run.
func (m *Metrics) ObserveCrossCheck(verdict string, green, amber, red int, d time.Duration) {
	if m == nil {
		return
	}
	m.CrossChecks.WithLabelValues(verdict).Inc()
	m.CheckResults.WithLabelValues("GREEN").Add(float64(green))
	m.CheckResults.WithLabelValues("AMBER").Add(float64(amber))
	m.CheckResults.WithLabelValues("RED").Add(float64(red))
	m.CrossCheckLatency.Observe(d.Seconds())
}

// IncrementReadiness records a readiness score.
func (m *Metrics) IncrementReadiness(verdict string) {
	if m != nil {
		m.ReadinessScores.WithLabelValues(verdict).Inc()
	}
}

// IncrementAppend records an audit append.
func (m *Metrics) IncrementAppend() {
	if m != nil {
		m.AuditAppends.Inc()
	}
}

// IncrementVerification records a chain verification outcome.
func (m *Metrics) IncrementVerification(outcome string) {
	if m != nil {
		m.ChainVerifications.WithLabelValues(outcome).Inc()
	}
}

// IncrementRateLimited records a rejected request.
func (m *Metrics) IncrementRateLimited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}
