// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Pipeline metrics
	PipelinesStarted  *prometheus.CounterVec
	PipelineOutcomes  *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	StepsSubmitted    *prometheus.CounterVec
	PipelinesInFlight prometheus.Gauge

	// Detector metrics
	DetectorPolls     *prometheus.CounterVec
	DetectorTimeouts  prometheus.Counter
	ApprovalFallbacks prometheus.Counter

	// Side effects
	RecorderFailures prometheus.Counter
	Deployments      *prometheus.CounterVec

	// Quotes
	QuotesServed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "curve_purchaser"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Pipeline metrics
		PipelinesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "started_total",
			Help:      "Total number of pipelines started by route",
		}, []string{"route"}),
		PipelineOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "outcomes_total",
			Help:      "Total number of finished pipelines by route and outcome code",
		}, []string{"route", "outcome"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"route"}),
		StepsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "steps_submitted_total",
			Help:      "Total number of transactions submitted by step kind",
		}, []string{"kind"}),
		PipelinesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "in_flight",
			Help:      "Current number of running pipelines",
		}),

		// Detector metrics
		DetectorPolls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "polls_total",
			Help:      "Total number of balance polls by result",
		}, []string{"result"}),
		DetectorTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "timeouts_total",
			Help:      "Total number of swaps that yielded no observable output",
		}),
		ApprovalFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "approval_fallbacks_total",
			Help:      "Total number of approvals confirmed by fixed delay instead of receipt",
		}),

		RecorderFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "write_failures_total",
			Help:      "Total number of purchase records that failed to persist",
		}),
		Deployments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "deployments_total",
			Help:      "Total number of curve deployments by outcome",
		}, []string{"outcome"}),

		QuotesServed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "served_total",
			Help:      "Total number of quotes served by side",
		}, []string{"side"}),
	}
}

func (m *Metrics) PipelineStarted(route string) {
	if m == nil {
		return
	}
	m.PipelinesStarted.WithLabelValues(route).Inc()
	m.PipelinesInFlight.Inc()
}

func (m *Metrics) PipelineFinished(route, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PipelineOutcomes.WithLabelValues(route, outcome).Inc()
	m.PipelineDuration.WithLabelValues(route).Observe(elapsed.Seconds())
	m.PipelinesInFlight.Dec()
}

func (m *Metrics) StepSubmitted(kind string) {
	if m == nil {
		return
	}
	m.StepsSubmitted.WithLabelValues(kind).Inc()
}

// DetectorPoll matches confirm.PollHook
func (m *Metrics) DetectorPoll(_ int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DetectorPolls.WithLabelValues(result).Inc()
}

func (m *Metrics) DetectorTimeout() {
	if m == nil {
		return
	}
	m.DetectorTimeouts.Inc()
}

func (m *Metrics) ApprovalFallback() {
	if m == nil {
		return
	}
	m.ApprovalFallbacks.Inc()
}

func (m *Metrics) RecorderFailure() {
	if m == nil {
		return
	}
	m.RecorderFailures.Inc()
}

func (m *Metrics) Deployment(outcome string) {
	if m == nil {
		return
	}
	m.Deployments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QuoteServed(side string) {
	if m == nil {
		return
	}
	m.QuotesServed.WithLabelValues(side).Inc()
}
