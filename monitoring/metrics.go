// Package monitoring holds the Prometheus collectors of the exporter.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-templates/models"
)

// Metrics bundles Prometheus collectors for the exporter.
type Metrics struct {
	Registry          *prometheus.Registry
	ExportsTotal      *prometheus.CounterVec
	RecordsTotal      prometheus.Counter
	InjectionDuration prometheus.Histogram
	EmptyFieldsTotal  *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	exports := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_exports_total",
			Help: "Export invocations by outcome.",
		},
		[]string{"outcome"},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exporter_records_exported_total",
			Help: "Total number of records written to CSV exports.",
		},
	)
	injection := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exporter_injection_duration_seconds",
			Help:    "Time spent running the extractor inside the page.",
			Buckets: prometheus.DefBuckets,
		},
	)
	emptyFields := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_empty_fields_total",
			Help: "Exported fields with an empty value, by field key.",
		},
		[]string{"field"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exporter_errors_total",
			Help: "Total number of export errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(exports, records, injection, emptyFields, errorsTotal)

	return &Metrics{
		Registry:          registry,
		ExportsTotal:      exports,
		RecordsTotal:      records,
		InjectionDuration: injection,
		EmptyFieldsTotal:  emptyFields,
		ErrorsTotal:       errorsTotal,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// IncExport increments the export counter for an outcome label.
func (m *Metrics) IncExport(outcome string) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(outcome).Inc()
}

// ObserveInjection records how long an injection took.
func (m *Metrics) ObserveInjection(d time.Duration) {
	if m == nil {
		return
	}
	m.InjectionDuration.Observe(d.Seconds())
}

// ObserveRecords counts exported records and their empty fields.
func (m *Metrics) ObserveRecords(set models.ResultSet) {
	if m == nil {
		return
	}
	m.RecordsTotal.Add(float64(len(set)))
	for _, rec := range set {
		for _, f := range rec {
			if f.Value == "" {
				m.EmptyFieldsTotal.WithLabelValues(f.Key).Inc()
			}
		}
	}
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
