// Package metrics records run outcomes as Prometheus metrics.
//
// feedcaster runs as a short-lived job, so nothing is scraped. At the end of a
// run the registry is written to a node_exporter textfile collector path.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feedcaster"

// Item outcomes.
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Recorder owns a private registry for one run.
type Recorder struct {
	registry      *prometheus.Registry
	items         *prometheus.CounterVec
	failures      *prometheus.CounterVec
	showFailures  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	episodeLength *prometheus.HistogramVec
	runDuration   prometheus.Gauge
	lastRun       prometheus.Gauge
	runAborted    prometheus.Gauge
}

// NewRecorder registers the run metrics on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items handled in the run by outcome",
		}, []string{"show", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_failures_total",
			Help:      "Failed items by error kind",
		}, []string{"show", "kind"}),
		showFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "show_failures_total",
			Help:      "Shows that stopped early by error kind",
		}, []string{"show", "kind"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		episodeLength: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "episode_length_seconds",
			Help:      "Playing time of published episodes",
			Buckets:   []float64{60, 180, 300, 600, 900, 1200, 1800},
		}, []string{"show"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		runAborted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_aborted",
			Help:      "1 when the last run aborted on a store failure",
		}),
	}
	r.registry.MustRegister(r.items, r.failures, r.showFailures, r.stageDuration,
		r.episodeLength, r.runDuration, r.lastRun, r.runAborted)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) ItemPublished(show string, length time.Duration) {
	r.items.WithLabelValues(show, OutcomePublished).Inc()
	r.episodeLength.WithLabelValues(show).Observe(length.Seconds())
}

func (r *Recorder) ItemFailed(show, kind string) {
	r.items.WithLabelValues(show, OutcomeFailed).Inc()
	r.failures.WithLabelValues(show, kind).Inc()
}

func (r *Recorder) ItemSkipped(show string) {
	r.items.WithLabelValues(show, OutcomeSkipped).Inc()
}

func (r *Recorder) ShowFailed(show, kind string) {
	r.showFailures.WithLabelValues(show, kind).Inc()
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished records the end of a run.
func (r *Recorder) RunFinished(finished time.Time, elapsed time.Duration, aborted bool) {
	r.runDuration.Set(elapsed.Seconds())
	r.lastRun.Set(float64(finished.Unix()))
	if aborted {
		r.runAborted.Set(1)
	} else {
		r.runAborted.Set(0)
	}
}

// WriteTextfile writes the registry in the text exposition format. An empty
// path disables the export.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
