// Package metrics collects per-stage Prometheus metrics for a scan and can
// write them to a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/nao1215/electrumscan/internal/electrum"
	"github.com/nao1215/electrumscan/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "electrumscan"

// Registry owns the scan metrics. It uses a private prometheus.Registry so
// that several scans in one process, such as tests, do not collide.
type Registry struct {
	reg *prometheus.Registry

	dials    *prometheus.CounterVec
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	records  *prometheus.GaugeVec
	duration *prometheus.GaugeVec
}

// New creates a Registry with all collectors registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dials_total",
			Help:      "Connection attempts by stage, transport and outcome.",
		}, []string{"stage", "transport", "outcome"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Request/response exchanges by stage, method and outcome.",
		}, []string{"stage", "method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_latency_seconds",
			Help:      "Time from request write to response line.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 4},
		}, []string{"stage", "method"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_records",
			Help:      "Records produced by the last run of each stage.",
		}, []string{"stage"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of the last run of each stage.",
		}, []string{"stage"}),
	}
	r.reg.MustRegister(r.dials, r.calls, r.latency, r.records, r.duration)
	return r
}

// ForStage returns an electrum.Observer that labels events with stage.
// A nil Registry yields a nil Observer.
func (r *Registry) ForStage(stage string) electrum.Observer {
	if r == nil {
		return nil
	}
	return &stageObserver{reg: r, stage: stage}
}

// RecordStage stores the record count and elapsed time of a finished stage.
func (r *Registry) RecordStage(stage string, records int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(stage).Set(float64(records))
	r.duration.WithLabelValues(stage).Set(elapsed.Seconds())
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes all metrics in the text exposition format to path.
// The file is replaced atomically.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

type stageObserver struct {
	reg   *Registry
	stage string
}

func (o *stageObserver) ObserveDial(transport model.Transport, outcome electrum.Outcome) {
	o.reg.dials.WithLabelValues(o.stage, string(transport), outcome.String()).Inc()
}

func (o *stageObserver) ObserveCall(method string, outcome electrum.Outcome, latency time.Duration) {
	o.reg.calls.WithLabelValues(o.stage, method, outcome.String()).Inc()
	if latency > 0 {
		o.reg.latency.WithLabelValues(o.stage, method).Observe(latency.Seconds())
	}
}
