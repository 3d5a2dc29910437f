package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/evanw/svelte-prebundle/internal/stats"
)

// Metrics holds the Prometheus metrics of the prebundle passes
type Metrics struct {
	Registry *prometheus.Registry

	filesTotal      *prometheus.CounterVec
	compileDuration *prometheus.HistogramVec
	packageFiles    *prometheus.GaugeVec
	passesTotal     *prometheus.CounterVec
}

// NewMetrics creates the metrics on their own registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		filesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svelte_prebundle_files_total",
				Help: "Total number of component files loaded during prebundling",
			},
			[]string{"mode", "outcome"},
		),
		compileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "svelte_prebundle_compile_duration_seconds",
				Help:    "Time spent in the component compiler per file",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"mode"},
		),
		packageFiles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "svelte_prebundle_package_files",
				Help: "Files compiled per package in the last finished pass",
			},
			[]string{"mode", "package"},
		),
		passesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "svelte_prebundle_passes_total",
				Help: "Total number of finished prebundle passes",
			},
			[]string{"mode"},
		),
	}
}

func (m *Metrics) RecordFile(mode string, duration time.Duration, err error) {
	outcome := "compiled"
	if err != nil {
		outcome = "failed"
	}
	m.filesTotal.WithLabelValues(mode, outcome).Inc()
	if err == nil {
		m.compileDuration.WithLabelValues(mode).Observe(duration.Seconds())
	}
}

// RecordPass replaces the per-package gauges of "mode" with the groups of
// the pass that just finished
func (m *Metrics) RecordPass(mode string, groups []stats.Group) {
	m.packageFiles.DeletePartialMatch(prometheus.Labels{"mode": mode})
	for _, group := range groups {
		m.packageFiles.WithLabelValues(mode, group.Name).Set(float64(group.Files))
	}
	m.passesTotal.WithLabelValues(mode).Inc()
}

// Observer binds the metrics to one build mode
func (m *Metrics) Observer(mode string) *Observer {
	return &Observer{metrics: m, mode: mode}
}

type Observer struct {
	metrics *Metrics
	mode    string
}

func (o *Observer) FileCompiled(filename string, duration time.Duration) {
	o.metrics.RecordFile(o.mode, duration, nil)
}

func (o *Observer) FileFailed(filename string, err error) {
	o.metrics.RecordFile(o.mode, 0, err)
}

func (o *Observer) PassFinished(groups []stats.Group) {
	o.metrics.RecordPass(o.mode, groups)
}

// WriteFile writes every metric in the text exposition format
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
