package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DecisionMetrics records entitlement decision outcomes per metric.
type DecisionMetrics struct {
	decisions     *prometheus.CounterVec
	storeFailures *prometheus.CounterVec
	recordSeconds *prometheus.HistogramVec
}

// NewDecisionMetrics registers the decision metrics on the provided registerer.
func NewDecisionMetrics(reg prometheus.Registerer) *DecisionMetrics {
	if reg == nil {
		return &DecisionMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_decisions_total",
		Help: "Entitlement decisions by metric and outcome.",
	}, []string{"metric", "outcome"})
	storeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counter_store_failures_total",
		Help: "Counter store operations that failed.",
	}, []string{"metric"})
	recordSeconds := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "record_event_duration_seconds",
		Help:    "Duration of recordEvent calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"metric"})
	reg.MustRegister(decisions, storeFailures, recordSeconds)
	return &DecisionMetrics{
		decisions:     decisions,
		storeFailures: storeFailures,
		recordSeconds: recordSeconds,
	}
}

// Decision outcomes used as the outcome label value.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeFailOpen = "fail_open"
)

// IncDecision increments the decision counter for the metric/outcome pair.
func (d *DecisionMetrics) IncDecision(metric, outcome string) {
	if d == nil || d.decisions == nil {
		return
	}
	d.decisions.WithLabelValues(normalizeLabel(metric), normalizeLabel(outcome)).Inc()
}

// IncStoreFailure increments the store failure counter for the metric.
func (d *DecisionMetrics) IncStoreFailure(metric string) {
	if d == nil || d.storeFailures == nil {
		return
	}
	d.storeFailures.WithLabelValues(normalizeLabel(metric)).Inc()
}

// ObserveRecordDuration records the duration of a recordEvent call.
func (d *DecisionMetrics) ObserveRecordDuration(metric string, duration time.Duration) {
	if d == nil || d.recordSeconds == nil {
		return
	}
	d.recordSeconds.WithLabelValues(normalizeLabel(metric)).Observe(duration.Seconds())
}
