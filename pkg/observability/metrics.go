package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/consult/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records consultation activity in Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	transitions  *prometheus.CounterVec
	calls        *prometheus.HistogramVec
	traces       *prometheus.CounterVec
	relevant     prometheus.Histogram
	finishedWith *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on a private registry
// together with the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consult_transitions_total",
				Help: "Session phase transitions by operation",
			},
			[]string{"operation", "from", "to"},
		),
		calls: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consult_service_call_duration_seconds",
				Help:    "Duration of inference service calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		traces: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consult_trace_fetches_total",
				Help: "Rule trace refresh attempts",
			},
			[]string{"outcome"},
		),
		relevant: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "consult_trace_relevant_rules",
				Help:    "Number of relevant rules per classified trace",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
		finishedWith: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consult_consultations_finished_total",
				Help: "Consultations that reached the finished phase",
			},
			[]string{"operation"},
		),
	}
	m.registry.MustRegister(
		m.transitions, m.calls, m.traces, m.relevant, m.finishedWith,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.transitions.WithLabelValues(string(e.Operation), string(e.From), string(e.To)).Inc()
			if e.To == domain.PhaseFinished && e.From != domain.PhaseFinished {
				m.finishedWith.WithLabelValues(string(e.Operation)).Inc()
			}
		},
		OnServiceCall: func(_ context.Context, e *domain.CallEvent) {
			m.calls.WithLabelValues(string(e.Operation), outcome(e.IsError, e.Discarded)).Observe(e.Duration.Seconds())
		},
		OnTraceFetch: func(_ context.Context, e *domain.TraceEvent) {
			m.traces.WithLabelValues(outcome(e.IsError, false)).Inc()
			if !e.IsError {
				m.relevant.Observe(float64(e.Relevant))
			}
		},
	}
}

func outcome(isErr, discarded bool) string {
	switch {
	case discarded:
		return "discarded"
	case isErr:
		return "error"
	default:
		return "ok"
	}
}
