// Package registry holds the canonical, concurrent-safe map of backend
// identity to live telemetry and health state shared by the proxy engine
// and the two background pollers.
package registry

import (
	"strconv"
	"time"
)

// Backend is a configured backend identity: the (host, port) pair that
// never changes for the lifetime of the process.
type Backend struct {
	Host string
	Port int
}

// GPUSample is one device's telemetry, as reported by the sidecar.
type GPUSample struct {
	Index         int     `json:"index"`
	Name          string  `json:"name"`
	Utilization   int     `json:"utilization"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	TemperatureC  int     `json:"temperature"`
}

// MetricsDocument is the sidecar's /metrics response body (spec §6.1).
// Missing optional fields default to their zero value.
type MetricsDocument struct {
	ActiveRequests   int         `json:"active_requests"`
	GPUUtilization   int         `json:"gpu_utilization"`
	GPUMemoryUsedGB  float64     `json:"gpu_memory_used_gb"`
	GPUMemoryTotalGB float64     `json:"gpu_memory_total_gb"`
	GPUTemperature   int         `json:"gpu_temperature"`
	GPUs             []GPUSample `json:"gpus,omitempty"`
	GPUCount         int         `json:"gpu_count,omitempty"`
}

// Snapshot is a point-in-time, lock-free copy of one registry entry. It is
// safe to read and iterate without holding the registry or any entry lock.
type Snapshot struct {
	Host                string
	Port                int
	ActiveRequests      int64
	GPUUtilization      int
	GPUMemoryUsedGB     float64
	GPUMemoryTotalGB    float64
	GPUTemperature      int
	GPUs                []GPUSample
	GPUCount            int
	IsHealthy           bool
	ConsecutiveFailures int
	LastCheck           time.Time // zero value means "absent"
}

// Key returns the canonical "host:port" registry key for this snapshot.
func (s Snapshot) Key() string {
	return key(s.Host, s.Port)
}

// Score is the selection weight: lower is preferred. One in-flight request
// costs as much as ten percentage points of GPU utilization.
func (s Snapshot) Score() float64 {
	return float64(s.ActiveRequests)*10 + float64(s.GPUUtilization)
}

// LeastLoadedGPU returns the per-device sample with the lowest utilization,
// recovered from the original ServerMetrics.get_least_loaded_gpu. ok is
// false when the most recent metrics update carried no per-GPU detail (or
// no update has arrived yet).
func (s Snapshot) LeastLoadedGPU() (gpu GPUSample, ok bool) {
	if len(s.GPUs) == 0 {
		return GPUSample{}, false
	}
	least := s.GPUs[0]
	for _, g := range s.GPUs[1:] {
		if g.Utilization < least.Utilization {
			least = g
		}
	}
	return least, true
}

// AvailableGPUCapacityGB is the aggregate headroom recovered from the
// original ServerMetrics.get_available_gpu_capacity: aggregate total minus
// aggregate used. This is advisory only (spec §3 does not require
// gpu_memory_used <= gpu_memory_total to be enforced) and can be negative.
func (s Snapshot) AvailableGPUCapacityGB() float64 {
	return s.GPUMemoryTotalGB - s.GPUMemoryUsedGB
}

func key(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
