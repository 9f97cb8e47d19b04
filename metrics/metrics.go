// Package metrics exposes liveness service counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fingerlive"

// Metrics is a prometheus.Collector for the frame pipeline and sessions.
type Metrics struct {
	framesTotal    *prometheus.CounterVec
	decisionsTotal *prometheus.CounterVec
	savedTotal     prometheus.Counter
	activeSessions prometheus.Gauge
	frameDuration  prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Frames processed, by resulting status",
			},
			[]string{"status"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Terminal verdicts, by result and attack type",
			},
			[]string{"result", "attack"},
		),
		savedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_saved_total",
				Help:      "Results written to the result store",
			},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Sessions currently open",
			},
		),
		frameDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_analysis_seconds",
				Help:      "Time spent analyzing a single frame",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
			},
		),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.framesTotal.Describe(ch)
	m.decisionsTotal.Describe(ch)
	m.savedTotal.Describe(ch)
	m.activeSessions.Describe(ch)
	m.frameDuration.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.framesTotal.Collect(ch)
	m.decisionsTotal.Collect(ch)
	m.savedTotal.Collect(ch)
	m.activeSessions.Collect(ch)
	m.frameDuration.Collect(ch)
}

// The observation methods are no-ops on a nil *Metrics.

// ObserveFrame records one analyzed frame.
func (m *Metrics) ObserveFrame(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(status).Inc()
	m.frameDuration.Observe(d.Seconds())
}

// ObserveDecision records a verdict the first time a session reports it.
func (m *Metrics) ObserveDecision(result, attack string) {
	if m == nil {
		return
	}
	if attack == "" {
		attack = "none"
	}
	m.decisionsTotal.WithLabelValues(result, attack).Inc()
}

func (m *Metrics) ObserveSave() {
	if m != nil {
		m.savedTotal.Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

// Registry returns a registry holding m and the Go runtime collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(m, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the metrics in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
