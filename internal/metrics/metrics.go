// Package metrics exposes Prometheus metrics for generation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phi3_generations_total",
		Help: "Generation runs by final outcome",
	}, []string{"outcome"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phi3_generation_duration_seconds",
		Help:    "Wall time from spawn to resolution",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
	})

	GenerationChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phi3_generation_chunks",
		Help:    "Stdout chunks received per run",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phi3_active_runs",
		Help: "Generation subprocesses currently running",
	})

	StopMarkersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phi3_stop_markers_total",
		Help: "Runs ended by each stop marker",
	}, []string{"marker"})
)

// RunStarted marks a subprocess as running.
func RunStarted() {
	ActiveRuns.Inc()
}

// RunFinished records a resolved run. outcome is the error kind for failed
// generations and the run outcome otherwise; marker may be empty.
func RunFinished(outcome, marker string, chunks int, elapsed time.Duration) {
	ActiveRuns.Dec()
	GenerationsTotal.WithLabelValues(outcome).Inc()
	GenerationDuration.Observe(elapsed.Seconds())
	GenerationChunks.Observe(float64(chunks))
	if marker != "" {
		StopMarkersTotal.WithLabelValues(marker).Inc()
	}
}
