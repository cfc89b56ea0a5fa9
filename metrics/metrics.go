// Package metrics records sweep progress as Prometheus collectors on a
// private registry, suitable for the node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weiihann/streambench/harness"
)

// Outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeTimedOut  = "timed_out"
)

// Recorder holds the sweep collectors.
type Recorder struct {
	registry   *prometheus.Registry
	trials     *prometheus.CounterVec
	duration   prometheus.Histogram
	throughput prometheus.Gauge
	samples    prometheus.Counter
	malformed  prometheus.Counter
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streambench_trials_total",
			Help: "Trials run, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streambench_trial_duration_seconds",
			Help:    "Wall time from launching the receiver to reaping both processes.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streambench_throughput_mbps",
			Help: "Mean throughput of the most recent trial.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streambench_samples_total",
			Help: "STATS samples extracted across all trials.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streambench_malformed_lines_total",
			Help: "STATS lines skipped because the value did not parse.",
		}),
	}

	r.registry.MustRegister(r.trials, r.duration, r.throughput, r.samples, r.malformed)

	return r
}

// ObserveTrial records one finished trial.
func (r *Recorder) ObserveTrial(res harness.TrialResult, malformed int) {
	outcome := OutcomeCompleted
	if res.TimedOut {
		outcome = OutcomeTimedOut
	}

	r.trials.WithLabelValues(outcome).Inc()
	r.duration.Observe(res.Elapsed.Seconds())
	r.throughput.Set(res.Mbps)
	r.samples.Add(float64(res.Samples))
	r.malformed.Add(float64(malformed))
}

// Gatherer exposes the registry, e.g. for promhttp or tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the current values to path in text exposition
// format. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}

	return nil
}
