package batch

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects per-record statistics of a run. A batch run is short lived, so the
// registry is written to a node-exporter textfile instead of being scraped.
type Metrics struct {
	Registry *prometheus.Registry

	records  *prometheus.CounterVec
	depth    prometheus.Histogram
	duration *prometheus.HistogramVec
}

// NewMetrics registers the batch metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mboxfwd_records_total",
				Help: "Number of records handled, by outcome.",
			},
			[]string{"outcome"},
		),
		depth: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mboxfwd_forward_depth",
				Help:    "Depth of the deepest forwarded message of processed records.",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 12, 15, 20, 35, 64},
			},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mboxfwd_record_duration_seconds",
				Help:    "Time spent on one record, by outcome.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10, 30},
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) observe(outcome Outcome, depth int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(string(outcome)).Inc()
	m.duration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
	if outcome == OutcomeProcessed {
		m.depth.Observe(float64(depth))
	}
}

// WriteTextfile writes the metrics in the text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
