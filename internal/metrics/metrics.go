// Package metrics exposes Prometheus collectors for the OTP pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "otpfetch"
	noKind    = "none"
)

// Upstream call names used as label values.
const (
	CallTokenExchange = "token_exchange"
	CallListMessages  = "list_messages"
)

// Metrics groups the pipeline collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	outcomes        *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	accountDuration prometheus.Histogram
	otpsExtracted   prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_outcomes_total",
			Help:      "Processed accounts by outcome status and failure kind.",
		}, []string{"status", "kind"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Outbound identity and mail provider requests by result.",
		}, []string{"call", "result"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Outbound request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		accountDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "account_duration_seconds",
			Help:      "End-to-end processing time of one account.",
			Buckets:   prometheus.DefBuckets,
		}),
		otpsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otps_extracted_total",
			Help:      "OTP codes extracted from mailbox messages.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.outcomes, m.upstreamCalls, m.upstreamLatency, m.accountDuration, m.otpsExtracted)
	}
	return m
}

// ObserveOutcome records one finished account. kind is empty for non-failures.
func (m *Metrics) ObserveOutcome(status, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = noKind
	}
	m.outcomes.WithLabelValues(status, kind).Inc()
	m.accountDuration.Observe(elapsed.Seconds())
}

// ObserveUpstream records one outbound call. result is "ok" or a failure kind.
func (m *Metrics) ObserveUpstream(call, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(call, result).Inc()
	m.upstreamLatency.WithLabelValues(call).Observe(elapsed.Seconds())
}

// AddOTPs counts extracted codes.
func (m *Metrics) AddOTPs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.otpsExtracted.Add(float64(n))
}
