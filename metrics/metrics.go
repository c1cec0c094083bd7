// Package metrics holds the per-process analysis counters. They live on a
// private registry and can be dumped in text exposition format for a node
// exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "oht_analyzer"

type Recorder struct {
	reg *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	entries     *prometheus.CounterVec
	lines       prometheus.Counter
	anchors     prometheus.Counter
	windows     prometheus.Counter
	precursors  prometheus.Counter
	drives      prometheus.Counter
	symbols     *prometheus.GaugeVec
	rulesReload *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis passes by result (ok, error).",
		}, []string{"result"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of an analysis pass.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entries_total",
			Help:      "Log archive members by outcome (decoded, skipped).",
		}, []string{"outcome"}),
		lines: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_lines_total",
			Help:      "Classified log lines.",
		}),
		anchors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anchors_total",
			Help:      "Error-code anchors extracted.",
		}),
		windows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Merged anchor windows.",
		}),
		precursors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precursor_events_total",
			Help:      "Precursor events attached to windows.",
		}),
		drives: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drive_events_total",
			Help:      "Drive evidence events attached to windows.",
		}),
		symbols: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_symbols",
			Help:      "Error-code symbols per indexed codebase.",
		}, []string{"codebase"}),
		rulesReload: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_reloads_total",
			Help:      "Rules file reloads by result (ok, error).",
		}, []string{"result"}),
	}
}

// Registry exposes the private registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// PassCounts is what one analysis pass reports.
type PassCounts struct {
	Entries    int
	Skipped    int
	Lines      int
	Anchors    int
	Windows    int
	Precursors int
	Drives     int
}

// ObservePass records a finished pass. A nil Recorder is a no-op.
func (r *Recorder) ObservePass(c PassCounts, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.runs.WithLabelValues(result).Inc()
	r.runDuration.Observe(elapsed.Seconds())
	r.entries.WithLabelValues("decoded").Add(float64(c.Entries))
	r.entries.WithLabelValues("skipped").Add(float64(c.Skipped))
	r.lines.Add(float64(c.Lines))
	r.anchors.Add(float64(c.Anchors))
	r.windows.Add(float64(c.Windows))
	r.precursors.Add(float64(c.Precursors))
	r.drives.Add(float64(c.Drives))
}

func (r *Recorder) SetSymbols(codebase string, n int) {
	if r == nil {
		return
	}
	r.symbols.WithLabelValues(codebase).Set(float64(n))
}

func (r *Recorder) RulesReloaded(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.rulesReload.WithLabelValues("error").Inc()
		return
	}
	r.rulesReload.WithLabelValues("ok").Inc()
}

// WriteTextfile writes every metric to path in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
