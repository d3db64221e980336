// Package metrics records batch counters and stage timings for node-exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/KyungWonPark/Connectome/internal/calc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Recorder owns a private registry so several pipelines never share counters.
type Recorder struct {
	reg *prometheus.Registry

	streamlines   *prometheus.CounterVec
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// New registers the connectome metrics on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		reg: reg,
		streamlines: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connectome_streamlines_total",
			Help: "Streamlines classified, by outcome",
		}, []string{"outcome"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connectome_runs_total",
			Help: "Runs processed, by status",
		}, []string{"status"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connectome_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"stage"}),
	}
}

// Streamlines adds one run's classification counts.
func (r *Recorder) Streamlines(s calc.ClassifyStats) {
	if r == nil {
		return
	}
	r.streamlines.WithLabelValues("connected").Add(float64(s.Connected))
	r.streamlines.WithLabelValues("background").Add(float64(s.Background))
	r.streamlines.WithLabelValues("out_of_bounds").Add(float64(s.OutOfBounds))
	r.streamlines.WithLabelValues("empty").Add(float64(s.Empty))
}

// Run counts a finished run.
func (r *Recorder) Run(status string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
}

// Stage starts timing a stage; call the returned func when it ends.
func (r *Recorder) Stage(stage string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile dumps every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("[WriteTextfile] %s: %w", path, err)
	}

	return nil
}
