// Package admin implements the operator-facing surface: a liveness check
// and a snapshot of every backend's current state (spec §4.6).
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inferlb/inferlb/internal/registry"
)

// Handlers groups the admin endpoints over a shared registry.
type Handlers struct {
	reg *registry.Registry
}

// NewHandlers builds the admin handlers.
func NewHandlers(reg *registry.Registry) *Handlers {
	return &Handlers{reg: reg}
}

// Health always responds 200: it reports process liveness, not backend
// health. Backend health is a Servers concern.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// serverView is one backend's admin-facing view.
type serverView struct {
	Host                   string            `json:"host"`
	Port                   int               `json:"port"`
	IsHealthy              bool              `json:"is_healthy"`
	ActiveRequests         int64             `json:"active_requests"`
	ConsecutiveFailures    int               `json:"consecutive_failures"`
	Score                  float64           `json:"score"`
	GPUUtilization         int               `json:"gpu_utilization"`
	GPUMemoryUsedGB        float64           `json:"gpu_memory_used_gb"`
	GPUMemoryTotalGB       float64           `json:"gpu_memory_total_gb"`
	AvailableGPUCapacityGB float64           `json:"available_gpu_capacity_gb"`
	LeastLoadedGPU         *registry.GPUSample `json:"least_loaded_gpu,omitempty"`
}

// Servers reports a point-in-time snapshot of every configured backend.
func (h *Handlers) Servers(c *gin.Context) {
	snapshots := h.reg.SnapshotAll()
	views := make([]serverView, 0, len(snapshots))

	for _, s := range snapshots {
		view := serverView{
			Host:                   s.Host,
			Port:                   s.Port,
			IsHealthy:              s.IsHealthy,
			ActiveRequests:         s.ActiveRequests,
			ConsecutiveFailures:    s.ConsecutiveFailures,
			Score:                  s.Score(),
			GPUUtilization:         s.GPUUtilization,
			GPUMemoryUsedGB:        s.GPUMemoryUsedGB,
			GPUMemoryTotalGB:       s.GPUMemoryTotalGB,
			AvailableGPUCapacityGB: s.AvailableGPUCapacityGB(),
		}
		if gpu, ok := s.LeastLoadedGPU(); ok {
			view.LeastLoadedGPU = &gpu
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"servers": views})
}
