package gateway

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goatkit/funcflow/internal/execlog"
)

type gatewayMetrics struct {
	executions *prometheus.CounterVec
	durations  prometheus.Observer
}

var (
	metricsOnce sync.Once
	metricsInst *gatewayMetrics
)

func globalMetrics() *gatewayMetrics {
	metricsOnce.Do(func() {
		metricsInst = newGatewayMetrics()
	})
	return metricsInst
}

func newGatewayMetrics() *gatewayMetrics {
	return &gatewayMetrics{
		executions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "funcflow",
			Subsystem: "gateway",
			Name:      "executions_total",
			Help:      "Function executions, labeled by origin and status",
		}, []string{"origin", "status"}),
		durations: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "funcflow",
			Subsystem: "gateway",
			Name:      "execution_duration_seconds",
			Help:      "Duration of function invocations",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *gatewayMetrics) observe(origin execlog.Origin, status string, took time.Duration) {
	m.executions.WithLabelValues(string(origin), status).Inc()
	m.durations.Observe(took.Seconds())
}
