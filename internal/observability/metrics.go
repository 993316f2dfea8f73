// Package observability registers the prometheus metrics emitted at the
// verification pipeline's transition points: tier entry/exit, retries,
// fallbacks and verdicts.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors for the verification pipeline.
type Metrics struct {
	TierAttempts  *prometheus.CounterVec // tier, outcome: success|failure|skipped
	TierFallbacks prometheus.Counter     // cascade advanced past a failed tier
	RemoteRetries prometheus.Counter     // retry attempts against remote providers
	Verdicts      *prometheus.CounterVec // verdict, trust tier
	CascadeTime   prometheus.Histogram   // end-to-end cascade latency
}

// NewMetrics creates and registers the pipeline collectors on the given
// registerer. Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gymcheck",
			Name:      "classifier_tier_attempts_total",
			Help:      "Classifier tier attempts by tier and outcome.",
		}, []string{"tier", "outcome"}),
		TierFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gymcheck",
			Name:      "classifier_fallbacks_total",
			Help:      "Times the cascade advanced past a failed tier.",
		}),
		RemoteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gymcheck",
			Name:      "remote_retries_total",
			Help:      "Retry attempts against remote classifier providers.",
		}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gymcheck",
			Name:      "verification_verdicts_total",
			Help:      "Verification verdicts by result and trust tier.",
		}, []string{"verdict", "trust"}),
		CascadeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gymcheck",
			Name:      "classifier_cascade_seconds",
			Help:      "End-to-end classifier cascade latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.TierAttempts, m.TierFallbacks, m.RemoteRetries, m.Verdicts, m.CascadeTime)
	}
	return m
}

// RecordTier increments the tier attempt counter. Nil-safe so callers can
// run without metrics in tests.
func (m *Metrics) RecordTier(tier, outcome string) {
	if m == nil {
		return
	}
	m.TierAttempts.WithLabelValues(tier, outcome).Inc()
}

// RecordFallback increments the fallback counter.
func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.TierFallbacks.Inc()
}

// RecordRemoteRetry increments the remote retry counter.
func (m *Metrics) RecordRemoteRetry() {
	if m == nil {
		return
	}
	m.RemoteRetries.Inc()
}

// RecordVerdict increments the verdict counter.
func (m *Metrics) RecordVerdict(verified bool, trust string) {
	if m == nil {
		return
	}
	verdict := "rejected"
	if verified {
		verdict = "verified"
	}
	m.Verdicts.WithLabelValues(verdict, trust).Inc()
}

// ObserveCascade records cascade latency in seconds.
func (m *Metrics) ObserveCascade(seconds float64) {
	if m == nil {
		return
	}
	m.CascadeTime.Observe(seconds)
}
