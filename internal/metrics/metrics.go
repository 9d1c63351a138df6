// Package metrics exposes Prometheus counters and histograms for imports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/exportappend/internal/importer"
)

const namespace = "exportappend"

// unresolvedTable labels imports that failed before the target table's
// columns were read, so request input never becomes a label value.
const unresolvedTable = "unresolved"

var _ importer.Observer = (*Collector)(nil)

// Collector records import activity. It implements importer.Observer.
type Collector struct {
	registry *prometheus.Registry

	importsActive  prometheus.Gauge
	importsTotal   *prometheus.CounterVec
	importDuration *prometheus.HistogramVec
	rowsInserted   *prometheus.CounterVec

	batchesTotal  *prometheus.CounterVec
	batchLatency  *prometheus.HistogramVec
	mergeTotal    *prometheus.CounterVec
	mergeDuration *prometheus.HistogramVec
}

// New creates a Collector with its own registry, including the Go runtime
// and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		importsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imports_active",
			Help:      "Imports currently running.",
		}),
		importsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Finished imports by result and error code.",
		}, []string{"table", "result", "code"}),
		importDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of finished imports.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"table", "result"}),
		rowsInserted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Rows appended to staging tables.",
		}, []string{"table"}),
		batchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "INSERT batches by result.",
		}, []string{"table", "result"}),
		batchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_latency_seconds",
			Help:      "Latency of one INSERT batch.",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.02, 0.05,
				0.1, 0.2, 0.5, 1, 2, 5,
			},
		}, []string{"table"}),
		mergeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_steps_total",
			Help:      "Merge procedure calls by result.",
		}, []string{"step", "result"}),
		mergeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_step_duration_seconds",
			Help:      "Duration of merge procedure calls.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}, []string{"step"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ImportStarted counts a run as active.
func (c *Collector) ImportStarted() {
	c.importsActive.Inc()
}

// BatchInserted records one INSERT batch and, on success, its rows.
func (c *Collector) BatchInserted(table string, rows int, elapsed time.Duration, err error) {
	c.batchesTotal.WithLabelValues(table, result(err)).Inc()
	c.batchLatency.WithLabelValues(table).Observe(elapsed.Seconds())
	if err == nil {
		c.rowsInserted.WithLabelValues(table).Add(float64(rows))
	}
}

// MergeStepFinished records one merge procedure call.
func (c *Collector) MergeStepFinished(step string, elapsed time.Duration, err error) {
	c.mergeTotal.WithLabelValues(step, result(err)).Inc()
	c.mergeDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// ImportFinished records the outcome of a run and marks it inactive.
func (c *Collector) ImportFinished(o importer.Outcome) {
	res, code := "ok", ""
	if !o.OK {
		res, code = "error", importer.MapError(o.Err).Code
	}
	table := o.Table
	if !o.SchemaResolved() {
		table = unresolvedTable
	}
	c.importsActive.Dec()
	c.importsTotal.WithLabelValues(table, res, code).Inc()
	c.importDuration.WithLabelValues(table, res).Observe(o.Duration.Seconds())
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
