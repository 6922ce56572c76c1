// Package metrics exposes Prometheus metrics for the delivery engine.
//
// Components record through the package-level helpers, which are no-ops
// until SetGlobal installs a Metrics instance.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	JobsTotal            *prometheus.CounterVec
	EventsTotal          *prometheus.CounterVec
	WebhookPayloadsTotal *prometheus.CounterVec
	AccountTransitions   *prometheus.CounterVec
	WarmupAdvancesTotal  prometheus.Counter
	ReputationScore      *prometheus.GaugeVec
	CycleDuration        *prometheus.HistogramVec
	SweptJobsTotal       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_jobs_total",
				Help: "Send jobs processed by the dispatcher, by outcome",
			},
			[]string{"outcome"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_delivery_events_total",
				Help: "Delivery events seen by the reconciler, by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		WebhookPayloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_webhook_payloads_total",
				Help: "Provider webhook payloads received, by provider and result",
			},
			[]string{"provider", "result"},
		),
		AccountTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_account_transitions_total",
				Help: "Sending account status changes, by target status",
			},
			[]string{"status"},
		),
		WarmupAdvancesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_warmup_advances_total",
				Help: "Warm-up tier advances",
			},
		),
		ReputationScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "outreach_reputation_score",
				Help: "Latest reputation score per sending account",
			},
			[]string{"account_id"},
		),
		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outreach_cycle_duration_seconds",
				Help:    "Duration of periodic trigger runs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		),
		SweptJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_swept_jobs_total",
				Help: "Jobs touched by maintenance sweeps, by action",
			},
			[]string{"action"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.JobsTotal,
		m.EventsTotal,
		m.WebhookPayloadsTotal,
		m.AccountTransitions,
		m.WarmupAdvancesTotal,
		m.ReputationScore,
		m.CycleDuration,
		m.SweptJobsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetGlobal installs m as the target of the package-level helpers.
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	globalMetrics = m
	globalMu.Unlock()
}

// Global returns the installed Metrics, or nil.
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncJob counts one dispatcher job outcome.
func IncJob(outcome string) {
	if m := Global(); m != nil {
		m.JobsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncEvent counts one reconciler event outcome.
func IncEvent(eventType, outcome string) {
	if m := Global(); m != nil {
		m.EventsTotal.WithLabelValues(eventType, outcome).Inc()
	}
}

// IncWebhookPayload counts one webhook payload.
func IncWebhookPayload(provider, result string) {
	if m := Global(); m != nil {
		m.WebhookPayloadsTotal.WithLabelValues(provider, result).Inc()
	}
}

// IncAccountTransition counts one account status change.
func IncAccountTransition(status string) {
	if m := Global(); m != nil {
		m.AccountTransitions.WithLabelValues(status).Inc()
	}
}

// IncWarmupAdvance counts one warm-up tier advance.
func IncWarmupAdvance() {
	if m := Global(); m != nil {
		m.WarmupAdvancesTotal.Inc()
	}
}

// SetReputationScore records an account's latest score.
func SetReputationScore(accountID string, score float64) {
	if m := Global(); m != nil {
		m.ReputationScore.WithLabelValues(accountID).Set(score)
	}
}

// ObserveCycle records how long a trigger run took.
func ObserveCycle(trigger string, d time.Duration) {
	if m := Global(); m != nil {
		m.CycleDuration.WithLabelValues(trigger).Observe(d.Seconds())
	}
}

// AddSwept counts jobs changed by a maintenance action.
func AddSwept(action string, n int) {
	if m := Global(); m != nil && n > 0 {
		m.SweptJobsTotal.WithLabelValues(action).Add(float64(n))
	}
}
