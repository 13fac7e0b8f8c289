package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCrossCheck("DISCREPANCIES_FOUND", 3, 1, 2, 40*time.Millisecond)
	m.ObserveCrossCheck("COMPLIANT", 4, 0, 0, 10*time.Millisecond)
	m.IncrementReadiness("AMBER")
	m.IncrementAppend()
	m.IncrementAppend()
	m.IncrementVerification("tampered_payload")
	m.IncrementRateLimited()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"Discrepancies", testutil.ToFloat64(m.CrossChecks.WithLabelValues("DISCREPANCIES_FOUND")), 1},
		{"GreenResults", testutil.ToFloat64(m.CheckResults.WithLabelValues("GREEN")), 7},
		{"RedResults", testutil.ToFloat64(m.CheckResults.WithLabelValues("RED")), 2},
		{"Readiness", testutil.ToFloat64(m.ReadinessScores.WithLabelValues("AMBER")), 1},
		{"Appends", testutil.ToFloat64(m.AuditAppends), 2},
		{"Tampered", testutil.ToFloat64(m.ChainVerifications.WithLabelValues("tampered_payload")), 1},
		{"RateLimited", testutil.ToFloat64(m.RateLimited), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(m.CrossCheckLatency); n != 1 {
		t.Errorf("expected one latency histogram, got %d", n)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	m.ObserveCrossCheck("COMPLIANT", 1, 0, 0, time.Millisecond)
	m.IncrementReadiness("GREEN")
	m.IncrementAppend()
	m.IncrementVerification("valid")
	m.IncrementRateLimited()
}
