package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records enrichment outcomes. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	stages   *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the enrichment collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mirror",
				Name:      "enrichment_stage_total",
				Help:      "Enrichment stage runs by outcome.",
			},
			[]string{"stage", "status"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mirror",
			Name:      "enrichment_duration_seconds",
			Help:      "Time spent enriching one thought.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	reg.MustRegister(m.stages, m.duration)
	return m
}

func (m *Metrics) recordStage(stage string, status Status) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage, string(status)).Inc()
}

func (m *Metrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}
