// Package telemetry exposes the load balancer's Prometheus metrics: request
// counts and latency, per-backend active-request and health gauges, GPU
// telemetry gauges, and poll-outcome counters for both background tasks.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/inferlb/inferlb/internal/registry"
)

// Collector holds every metric the balancer exports.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec

	BackendHealthy  *prometheus.GaugeVec
	BackendScore    *prometheus.GaugeVec

	GPUUtilization *prometheus.GaugeVec
	GPUMemoryUsed  *prometheus.GaugeVec
	GPUMemoryTotal *prometheus.GaugeVec
	GPUTemperature *prometheus.GaugeVec

	MetricsPollTotal *prometheus.CounterVec
	HealthProbeTotal *prometheus.CounterVec

	NoHealthyBackendTotal prometheus.Counter
}

// NewCollector builds and registers every metric against the default
// registry.
func NewCollector() *Collector {
	return &Collector{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inferlb_requests_total",
				Help: "Total number of proxied requests",
			},
			[]string{"backend", "method", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inferlb_request_duration_seconds",
				Help:    "Proxied request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "method"},
		),

		ActiveRequests: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inferlb_active_requests",
				Help: "In-flight requests per backend",
			},
			[]string{"backend"},
		),

		BackendHealthy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inferlb_backend_healthy",
				Help: "Backend health state (1=healthy, 0=unhealthy)",
			},
			[]string{"backend"},
		),

		BackendScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inferlb_backend_score",
				Help: "Selection score (lower is preferred)",
			},
			[]string{"backend"},
		),

		GPUUtilization: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inferlb_gpu_utilization_percent",
				Help: "Aggregate GPU utilization reported by the sidecar",
			},
			[]string{"backend"},
		),

		GPUMemoryUsed: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inferlb_gpu_memory_used_gb",
				Help: "Aggregate GPU memory in use, in GB",
			},
			[]string{"backend"},
		),

		GPUMemoryTotal: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inferlb_gpu_memory_total_gb",
				Help: "Aggregate GPU memory capacity, in GB",
			},
			[]string{"backend"},
		),

		GPUTemperature: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inferlb_gpu_temperature_celsius",
				Help: "Aggregate GPU temperature reported by the sidecar",
			},
			[]string{"backend"},
		),

		MetricsPollTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inferlb_metrics_poll_total",
				Help: "Sidecar metrics poll outcomes",
			},
			[]string{"backend", "result"},
		),

		HealthProbeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inferlb_health_probe_total",
				Help: "Direct /api/tags health probe outcomes",
			},
			[]string{"backend", "result"},
		),

		NoHealthyBackendTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "inferlb_no_healthy_backend_total",
				Help: "Requests rejected with 503 because no backend was healthy",
			},
		),
	}
}

// ObserveMetricsPoll records one sidecar scrape outcome.
func (c *Collector) ObserveMetricsPoll(b registry.Backend, ok bool) {
	c.MetricsPollTotal.WithLabelValues(b.Host, outcome(ok)).Inc()
}

// ObserveHealthProbe records one direct /api/tags probe outcome.
func (c *Collector) ObserveHealthProbe(b registry.Backend, ok bool) {
	c.HealthProbeTotal.WithLabelValues(b.Host, outcome(ok)).Inc()
}

// ObserveNoHealthyBackend records a request rejected for lack of any
// healthy backend.
func (c *Collector) ObserveNoHealthyBackend() {
	c.NoHealthyBackendTotal.Inc()
}

// RefreshBackendGauges republishes the per-backend gauges from a full
// registry snapshot. Called by the Exporter on its own ticker, independent
// of the poll cycles that update the registry.
func (c *Collector) RefreshBackendGauges(snapshots []registry.Snapshot) {
	for _, s := range snapshots {
		label := s.Host

		healthy := 0.0
		if s.IsHealthy {
			healthy = 1.0
		}
		c.BackendHealthy.WithLabelValues(label).Set(healthy)
		c.BackendScore.WithLabelValues(label).Set(s.Score())
		c.ActiveRequests.WithLabelValues(label).Set(float64(s.ActiveRequests))
		c.GPUUtilization.WithLabelValues(label).Set(float64(s.GPUUtilization))
		c.GPUMemoryUsed.WithLabelValues(label).Set(s.GPUMemoryUsedGB)
		c.GPUMemoryTotal.WithLabelValues(label).Set(s.GPUMemoryTotalGB)
		c.GPUTemperature.WithLabelValues(label).Set(float64(s.GPUTemperature))
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
