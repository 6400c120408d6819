package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports sync and service metrics through client_golang.
type PrometheusRecorder struct {
	ops        *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	queueDepth prometheus.Gauge
}

// NewPrometheusRecorder registers the academy collectors on reg
// (prometheus.DefaultRegisterer when nil).
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "academy",
			Name:      "operations_total",
			Help:      "Operations by name and outcome.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "academy",
			Name:      "operation_duration_seconds",
			Help:      "Operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "academy",
			Name:      "offline_queue_depth",
			Help:      "Offline actions waiting for replay.",
		}),
	}
	for _, c := range []prometheus.Collector{r.ops, r.latency, r.queueDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe records an operation outcome.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.ops.WithLabelValues(operation, status).Inc()
	r.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetQueueDepth records the pending offline action count.
func (r *PrometheusRecorder) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}
