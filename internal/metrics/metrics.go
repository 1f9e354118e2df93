// Package metrics exposes prometheus instruments for selection, definition
// loading, and session execution. All instruments live on a private
// registry so embedding servers and tests never fight over the global
// default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Step execution statuses.
const (
	StepOK      = "ok"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// Definition sources for the loaded-definitions gauge.
const (
	SourceBuiltin  = "builtin"
	SourceExternal = "external"
)

// Metrics collects engine metrics. A nil *Metrics is valid and records
// nothing, so callers don't need to guard every site.
type Metrics struct {
	registry *prometheus.Registry

	selections           *prometheus.CounterVec
	selectionFallbacks   *prometheus.CounterVec
	definitionLoads      prometheus.Counter
	definitionLoadErrors prometheus.Counter
	loadedDefinitions    *prometheus.GaugeVec
	validationIterations prometheus.Counter
	stepExecutions       *prometheus.CounterVec
	stepDuration         prometheus.Histogram
}

// New creates a metrics collector with its own registry, including the
// standard Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		selections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_selections_total",
			Help: "Workflow selections by deciding tier.",
		}, []string{"mode"}),
		selectionFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_selection_fallbacks_total",
			Help: "Selection tiers that declined and fell through.",
		}, []string{"from_tier"}),
		definitionLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "switchyard_definition_loads_total",
			Help: "Definition reload operations.",
		}),
		definitionLoadErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "switchyard_definition_load_errors_total",
			Help: "Definition files rejected during reload.",
		}),
		loadedDefinitions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "switchyard_loaded_definitions",
			Help: "Workflows available in the merged catalog.",
		}, []string{"source"}),
		validationIterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "switchyard_validation_iterations_total",
			Help: "Validation loop iterations across all sessions.",
		}),
		stepExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_step_executions_total",
			Help: "Step executions by outcome.",
		}, []string{"status"}),
		stepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "switchyard_step_duration_seconds",
			Help: "Wall-clock duration of step executions.",
			// Steps run an agent CLI: seconds on the floor, the
			// configured timeout (default 30m) on the ceiling.
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// Registry returns the underlying registry for scraping in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an http.Handler serving the metrics in prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSelection counts a completed selection by deciding tier.
func (m *Metrics) RecordSelection(mode string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(mode).Inc()
}

// RecordSelectionFallback counts a tier that declined.
func (m *Metrics) RecordSelectionFallback(fromTier string) {
	if m == nil {
		return
	}
	m.selectionFallbacks.WithLabelValues(fromTier).Inc()
}

// RecordSelectionOutcome records the deciding tier plus the tiers that
// declined before it. Tiers run in a fixed order, so the fallbacks are
// implied by the winner.
func (m *Metrics) RecordSelectionOutcome(mode string) {
	if m == nil {
		return
	}
	switch mode {
	case "direct":
		m.RecordSelectionFallback("label")
	case "classification":
		m.RecordSelectionFallback("label")
		m.RecordSelectionFallback("direct")
	}
	m.RecordSelection(mode)
}

// RecordDefinitionLoad counts one reload operation and however many files
// it rejected.
func (m *Metrics) RecordDefinitionLoad(fileErrors int) {
	if m == nil {
		return
	}
	m.definitionLoads.Inc()
	if fileErrors > 0 {
		m.definitionLoadErrors.Add(float64(fileErrors))
	}
}

// SetLoadedDefinitions records the catalog size for one source.
func (m *Metrics) SetLoadedDefinitions(source string, n int) {
	if m == nil {
		return
	}
	m.loadedDefinitions.WithLabelValues(source).Set(float64(n))
}

// RecordValidationIteration counts one validation loop iteration.
func (m *Metrics) RecordValidationIteration() {
	if m == nil {
		return
	}
	m.validationIterations.Inc()
}

// RecordStepExecution counts a finished step and observes its duration.
func (m *Metrics) RecordStepExecution(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepExecutions.WithLabelValues(status).Inc()
	m.stepDuration.Observe(d.Seconds())
}
