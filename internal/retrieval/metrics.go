package retrieval

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts retrieval outcomes per stage and tracks end-to-end
// durations. Stage labels use the pipeline's stage names; the outcome label
// is "ok" or "error".
type Metrics struct {
	outcomes  *prometheus.CounterVec
	durations prometheus.Histogram
}

// NewMetrics registers the collectors. A nil registerer uses the default
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockdrive",
			Subsystem: "retrieval",
			Name:      "stage_outcomes_total",
			Help:      "Retrieval pipeline outcomes by terminating stage.",
		}, []string{"stage", "outcome"}),
		durations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blockdrive",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval duration.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	reg.MustRegister(m.outcomes, m.durations)
	return m
}

func (m *Metrics) observe(stage Stage, ok bool, elapsed time.Duration) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.outcomes.WithLabelValues(string(stage), outcome).Inc()
	m.durations.Observe(elapsed.Seconds())
}
