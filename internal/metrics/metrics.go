// Package metrics holds the Prometheus instruments of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	cacheRequests  *prometheus.CounterVec
	intakeParses   *prometheus.CounterVec
	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	stepLimit      prometheus.Counter
	loopSteps      prometheus.Histogram
}

// New creates the instruments and registers them on reg
// (prometheus.DefaultRegisterer when nil).
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		intakeParses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_parse_total",
				Help:      "One-liner parse attempts by result",
			},
			[]string{"result"},
		),
		toolExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_executions_total",
				Help:      "Tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Duration of tool executions",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30},
			},
			[]string{"tool"},
		),
		stepLimit: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_step_limit_total",
				Help:      "Agent turns stopped by the step ceiling",
			},
		),
		loopSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_loop_steps",
				Help:      "Model steps per agent turn",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
		),
	}

	reg.MustRegister(
		m.cacheRequests,
		m.intakeParses,
		m.toolExecutions,
		m.toolDuration,
		m.stepLimit,
		m.loopSteps,
	)

	return m
}

// ObserveCacheLookup records a hit or miss on the named cache.
func (m *Metrics) ObserveCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

// RecordParse records a one-liner parse attempt.
func (m *Metrics) RecordParse(matched bool) {
	if m == nil {
		return
	}
	result := "fallback"
	if matched {
		result = "matched"
	}
	m.intakeParses.WithLabelValues(result).Inc()
}

// RecordTool records one tool execution.
func (m *Metrics) RecordTool(tool, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolExecutions.WithLabelValues(tool, status).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordTurn records the steps a turn took and whether it hit the ceiling.
func (m *Metrics) RecordTurn(steps int, limitReached bool) {
	if m == nil {
		return
	}
	m.loopSteps.Observe(float64(steps))
	if limitReached {
		m.stepLimit.Inc()
	}
}
