package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the operation metrics of one process run. Each instance owns
// its registry so that one-shot CLI runs can dump it to a textfile.
type Recorder struct {
	registry *prometheus.Registry

	// results counts per-item outcomes.
	// Labels: op (backup, restore, update, rollback, verify), status
	results *prometheus.CounterVec

	// batches counts batch outcomes.
	// Labels: op, status (success, partial, failed, planned)
	batches *prometheus.CounterVec

	// duration measures whole-batch wall time.
	// Labels: op
	duration *prometheus.HistogramVec

	// lastSuccess is the unix time of the last fully successful batch.
	// Labels: op
	lastSuccess *prometheus.GaugeVec

	// artifactBytes sums the size of produced artifacts.
	artifactBytes prometheus.Counter
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifecycle",
			Name:      "operation_results_total",
			Help:      "Per-item operation results by operation and status",
		}, []string{"op", "status"}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lifecycle",
			Name:      "operation_batches_total",
			Help:      "Batch outcomes by operation and status",
		}, []string{"op", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of a batch operation",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"op"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lifecycle",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last batch that fully succeeded",
		}, []string{"op"}),
		artifactBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lifecycle",
			Name:      "artifact_bytes_total",
			Help:      "Bytes written to backup artifacts",
		}),
	}
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveItem counts one per-item result.
func (r *Recorder) ObserveItem(op, status string, size int64) {
	r.results.WithLabelValues(op, status).Inc()
	if size > 0 {
		r.artifactBytes.Add(float64(size))
	}
}

// ObserveBatch records the outcome and duration of a batch.
func (r *Recorder) ObserveBatch(op, status string, took time.Duration, finished time.Time) {
	r.batches.WithLabelValues(op, status).Inc()
	r.duration.WithLabelValues(op).Observe(took.Seconds())
	if status == "success" {
		r.lastSuccess.WithLabelValues(op).Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes the current values in the node-exporter textfile
// format. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
