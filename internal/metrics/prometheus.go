package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exposes cache operation counters and latencies as
// Prometheus collectors.
type PrometheusRecorder struct {
	outcomes  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewPrometheusRecorder constructs a recorder and registers its collectors
// with the supplied registerer (prometheus.DefaultRegisterer when nil).
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusRecorder{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chadograph",
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Object cache operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chadograph",
			Subsystem: "cache",
			Name:      "operation_duration_seconds",
			Help:      "Object cache operation latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if err := reg.Register(rec.outcomes); err != nil {
		return nil, err
	}
	if err := reg.Register(rec.durations); err != nil {
		return nil, err
	}
	return rec, nil
}

// Record implements cache.MetricsRecorder.
func (r *PrometheusRecorder) Record(op string, duration time.Duration, outcome string) {
	r.outcomes.WithLabelValues(op, outcome).Inc()
	r.durations.WithLabelValues(op).Observe(duration.Seconds())
}
