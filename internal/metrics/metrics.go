// Package metrics exposes Prometheus instrumentation for receipt processing.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "expense_tracker"

// Attempt outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeUnparseable = "unparseable"
)

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	modelAttempts     *prometheus.CounterVec
	attemptDuration   *prometheus.HistogramVec
	adjustments       *prometheus.CounterVec
	fallbacks         prometheus.Counter
	persisted         *prometheus.CounterVec
	persistenceErrors prometheus.Counter
	jobsEnqueued      prometheus.Counter
	jobsDropped       prometheus.Counter
}

// New creates a registry with the process and Go collectors plus the
// expense tracker metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		modelAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Extraction attempts per model and outcome",
		}, []string{"model", "outcome"}),
		attemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_attempt_duration_seconds",
			Help:      "Duration of a single extraction attempt",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}, []string{"model"}),
		adjustments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_adjustments_total",
			Help:      "Corrections applied while reconciling extracted totals",
		}, []string{"rule"}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_records_total",
			Help:      "Placeholder records synthesized after every model attempt failed",
		}),
		persisted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expenses_persisted_total",
			Help:      "Expenses written, by processing status",
		}, []string{"status"}),
		persistenceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Failed expense inserts",
		}),
		jobsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Async receipt jobs accepted",
		}),
		jobsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dropped_total",
			Help:      "Async receipt jobs rejected because the queue was full",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAttempt(model, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.modelAttempts.WithLabelValues(model, outcome).Inc()
	m.attemptDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) IncAdjustment(rule string) {
	if m == nil {
		return
	}
	m.adjustments.WithLabelValues(rule).Inc()
}

func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) IncPersisted(status string) {
	if m == nil {
		return
	}
	m.persisted.WithLabelValues(status).Inc()
}

func (m *Metrics) IncPersistenceError() {
	if m == nil {
		return
	}
	m.persistenceErrors.Inc()
}

func (m *Metrics) IncJobEnqueued() {
	if m == nil {
		return
	}
	m.jobsEnqueued.Inc()
}

func (m *Metrics) IncJobDropped() {
	if m == nil {
		return
	}
	m.jobsDropped.Inc()
}
