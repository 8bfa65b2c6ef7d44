package rebalance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Processor. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	StageDuration       *prometheus.HistogramVec
	StageRows           *prometheus.GaugeVec
	SyntheticRows       *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rebalance_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "method"},
		),
		StageRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rebalance_stage_rows",
				Help: "Rows entering and leaving each pipeline stage in the last run",
			},
			[]string{"stage", "direction"},
		),
		SyntheticRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rebalance_synthetic_rows_total",
				Help: "Synthetic minority rows generated by balancing",
			},
			[]string{"method"},
		),
		PersistenceFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rebalance_persistence_failures_total",
				Help: "Processed datasets that could not be saved",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.StageDuration, m.StageRows, m.SyntheticRows, m.PersistenceFailures)
	}
	return m
}

func (m *Metrics) observeStage(stage, method string, start time.Time, in, out int) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, method).Observe(time.Since(start).Seconds())
	m.StageRows.WithLabelValues(stage, "in").Set(float64(in))
	m.StageRows.WithLabelValues(stage, "out").Set(float64(out))
}

func (m *Metrics) addSynthetic(method string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SyntheticRows.WithLabelValues(method).Add(float64(n))
}

func (m *Metrics) persistenceFailed() {
	if m == nil {
		return
	}
	m.PersistenceFailures.Inc()
}
