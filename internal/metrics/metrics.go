// Package metrics records classification activity on a private
// Prometheus registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the parasort_* metrics.
//
// Metrics:
//   - parasort_classifications_total{category,fell_back}
//   - parasort_degraded_signals_total{reason}
//   - parasort_batch_failures_total{kind}
//   - parasort_recomputes_total
//   - parasort_weights_version
//   - parasort_classify_duration_seconds
type Recorder struct {
	registry *prometheus.Registry

	classifications *prometheus.CounterVec
	degraded        *prometheus.CounterVec
	batchFailures   *prometheus.CounterVec
	recomputes      prometheus.Counter
	weightsVersion  prometheus.Gauge
	latency         prometheus.Histogram
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parasort_classifications_total",
			Help: "Notes classified, by final category and whether the fallback was used",
		}, []string{"category", "fell_back"}),
		degraded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parasort_degraded_signals_total",
			Help: "Classifications made without the semantic signal",
		}, []string{"reason"}),
		batchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "parasort_batch_failures_total",
			Help: "Notes in a batch that failed or were canceled",
		}, []string{"kind"}),
		recomputes: f.NewCounter(prometheus.CounterOpts{
			Name: "parasort_recomputes_total",
			Help: "Weight recomputations that produced a new snapshot",
		}),
		weightsVersion: f.NewGauge(prometheus.GaugeOpts{
			Name: "parasort_weights_version",
			Help: "Version of the weights snapshot in use",
		}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "parasort_classify_duration_seconds",
			Help:    "Time to classify one note, including the similarity wait",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveClassification records one finished classification.
func (r *Recorder) ObserveClassification(category string, fellBack bool, weightsVersion int64, took time.Duration) {
	if r == nil {
		return
	}
	r.classifications.WithLabelValues(category, strconv.FormatBool(fellBack)).Inc()
	r.weightsVersion.Set(float64(weightsVersion))
	r.latency.Observe(took.Seconds())
}

// Degraded records a classification that ran without similarity.
func (r *Recorder) Degraded(reason string) {
	if r == nil {
		return
	}
	r.degraded.WithLabelValues(reason).Inc()
}

// BatchFailure records a failed ("error") or unprocessed ("canceled") note.
func (r *Recorder) BatchFailure(kind string) {
	if r == nil {
		return
	}
	r.batchFailures.WithLabelValues(kind).Inc()
}

// Recomputed records a new weights snapshot.
func (r *Recorder) Recomputed(version int64) {
	if r == nil {
		return
	}
	r.recomputes.Inc()
	r.weightsVersion.Set(float64(version))
}

// WriteTextfile writes all metrics in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
