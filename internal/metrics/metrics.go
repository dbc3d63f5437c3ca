// Package metrics exposes the handful of Prometheus collectors this core
// produces data for: active worker token count (§4.F), per-channel health,
// in-flight sandbox job count and per-tool failure count, scraped at
// /metrics. Grounded on the teacher's internal/observability package
// (promauto-constructed vectors, one Metrics struct holding every
// collector), scoped down from its full HTTP/DB/LLM metric surface to
// these four.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector this core registers.
type Metrics struct {
	ActiveTokens  prometheus.Gauge
	ChannelHealth *prometheus.GaugeVec
	JobsActive    prometheus.Gauge
	ToolFailures  *prometheus.CounterVec
}

// New registers and returns the collector set against the default
// Prometheus registry.
func New() *Metrics {
	return &Metrics{
		ActiveTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironclaw",
			Name:      "worker_tokens_active",
			Help:      "Number of currently active (unrevoked) per-job worker bearer tokens.",
		}),
		ChannelHealth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ironclaw",
			Name:      "channel_health",
			Help:      "1 if the channel's last health check succeeded, 0 otherwise.",
		}, []string{"channel"}),
		JobsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "ironclaw",
			Name:      "jobs_active",
			Help:      "Number of sandbox jobs currently tracked by the orchestrator.",
		}),
		ToolFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ironclaw",
			Name:      "tool_failures_total",
			Help:      "Count of tool-call failures recorded by the orchestrator, by tool name.",
		}, []string{"tool"}),
	}
}

// ActiveTokenSource reports the current active-token count, satisfied by
// *workerauth.TokenStore.
type ActiveTokenSource interface {
	ActiveCount() int
}

// ChannelHealthChecker reports a channel's liveness, satisfied by
// channels.HealthChecker.
type ChannelHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RefreshTokens samples source.ActiveCount() into the gauge. cmd/ironclawd
// calls it just before each /metrics scrape rather than on every token
// mint/revoke, since
// the count is cheap to recompute and this keeps the token store free of
// any metrics-package import.
func (m *Metrics) RefreshTokens(source ActiveTokenSource) {
	m.ActiveTokens.Set(float64(source.ActiveCount()))
}

// RefreshChannelHealth samples one channel's health into the gauge.
func (m *Metrics) RefreshChannelHealth(ctx context.Context, name string, checker ChannelHealthChecker) {
	value := 1.0
	if err := checker.HealthCheck(ctx); err != nil {
		value = 0
	}
	m.ChannelHealth.WithLabelValues(name).Set(value)
}

// SetJobsActive records the current in-flight job count.
func (m *Metrics) SetJobsActive(n int) {
	m.JobsActive.Set(float64(n))
}

// RecordToolFailure increments the per-tool failure counter.
func (m *Metrics) RecordToolFailure(tool string) {
	m.ToolFailures.WithLabelValues(tool).Inc()
}
