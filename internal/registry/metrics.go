package registry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type registryMetrics struct {
	rebuilds     *prometheus.CounterVec
	functions    prometheus.Gauge
	loadErrors   prometheus.Counter
	buildTimes   prometheus.Observer
	currentEpoch prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *registryMetrics
)

func globalMetrics() *registryMetrics {
	metricsOnce.Do(func() {
		metricsInst = newRegistryMetrics()
	})
	return metricsInst
}

func newRegistryMetrics() *registryMetrics {
	return &registryMetrics{
		rebuilds: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "funcflow",
			Subsystem: "registry",
			Name:      "rebuilds_total",
			Help:      "Registry rebuilds, labeled by trigger",
		}, []string{"trigger"}),
		functions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "funcflow",
			Subsystem: "registry",
			Name:      "functions",
			Help:      "Functions in the currently published registry",
		}),
		loadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "funcflow",
			Subsystem: "registry",
			Name:      "load_errors_total",
			Help:      "Plugin files that failed to load during rebuilds",
		}),
		buildTimes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "funcflow",
			Subsystem: "registry",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of registry rebuilds",
			Buckets:   prometheus.DefBuckets,
		}),
		currentEpoch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "funcflow",
			Subsystem: "registry",
			Name:      "epoch",
			Help:      "Epoch of the currently published registry",
		}),
	}
}
