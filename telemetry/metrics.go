// Package telemetry provides optional Prometheus metrics and OpenTelemetry
// tracing for task/scheduler/agent execution. Nothing in machine, task,
// workflow, agent, or scheduler calls into this package directly — a caller
// wires it in via scheduler.StateChangedFn/StateHandler wrappers or agent
// hooks, so a deployment that doesn't care about observability pays
// nothing for it.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for task lifecycle and agent
// execution. All metrics are namespaced "loomwork_".
type Metrics struct {
	taskTransitions *prometheus.CounterVec
	taskRetries     *prometheus.CounterVec
	activeTasks     prometheus.Gauge
	runOnceLatency  *prometheus.HistogramVec
	toolCalls       *prometheus.CounterVec
	hookOutcomes    *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers every metric with registry. Passing nil
// uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &Metrics{enabled: true}

	m.taskTransitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loomwork",
		Name:      "task_transitions_total",
		Help:      "Cumulative count of task/scheduler state transitions",
	}, []string{"from", "to"})

	m.taskRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loomwork",
		Name:      "task_retries_total",
		Help:      "Cumulative count of recoverable RunOnceFunc failures that consumed retry budget",
	}, []string{"task_type", "reason"})

	m.activeTasks = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "loomwork",
		Name:      "active_tasks",
		Help:      "Current number of tasks not in a terminal state",
	})

	m.runOnceLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "loomwork",
		Name:      "run_once_latency_ms",
		Help:      "Agent.RunOnce duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"status"})

	m.toolCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loomwork",
		Name:      "tool_calls_total",
		Help:      "Cumulative count of tool service invocations",
	}, []string{"tool", "status"})

	m.hookOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loomwork",
		Name:      "hook_outcomes_total",
		Help:      "Cumulative count of hook chain outcomes",
	}, []string{"chain", "outcome"})

	return m
}

// RecordTransition records one state transition, keyed by its (from,to)
// state-name pair. Intended for use from a scheduler.StateChangedFn.
func (m *Metrics) RecordTransition(from, to string) {
	if !m.isEnabled() {
		return
	}
	m.taskTransitions.WithLabelValues(from, to).Inc()
}

// RecordRetry records one recoverable RunOnceFunc failure.
func (m *Metrics) RecordRetry(taskType, reason string) {
	if !m.isEnabled() {
		return
	}
	m.taskRetries.WithLabelValues(taskType, reason).Inc()
}

// SetActiveTasks sets the current count of non-terminal tasks.
func (m *Metrics) SetActiveTasks(count int) {
	if !m.isEnabled() {
		return
	}
	m.activeTasks.Set(float64(count))
}

// RecordRunOnce records one Agent.RunOnce call's duration and outcome
// ("ok", "error", "interfered").
func (m *Metrics) RecordRunOnce(d time.Duration, status string) {
	if !m.isEnabled() {
		return
	}
	m.runOnceLatency.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

// RecordToolCall records one tool invocation, status being "ok", "error",
// or "not_found".
func (m *Metrics) RecordToolCall(tool, status string) {
	if !m.isEnabled() {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// RecordHookOutcome records one hook chain's terminal outcome ("continue"
// or "interfere").
func (m *Metrics) RecordHookOutcome(chain, outcome string) {
	if !m.isEnabled() {
		return
	}
	m.hookOutcomes.WithLabelValues(chain, outcome).Inc()
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable stops recording without unregistering any metric (useful in
// tests that construct a Metrics against the default registry repeatedly).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable re-enables recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// Reset zeros the gauge. Counters and histograms are cumulative by Prometheus
// design and cannot be reset in place.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeTasks.Set(0)
}
