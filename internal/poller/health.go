package poller

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/inferlb/inferlb/internal/config"
	"github.com/inferlb/inferlb/internal/logging"
	"github.com/inferlb/inferlb/internal/registry"
	"github.com/inferlb/inferlb/internal/telemetry"
)

// HealthChecker is the background task that probes unhealthy backends
// directly, independent of the metrics poller, so a backend whose sidecar
// is down but whose Ollama server is actually fine can still recover
// (spec §4.3).
type HealthChecker struct {
	reg       *registry.Registry
	backends  []registry.Backend
	settings  *config.DynamicSettings
	logger    *logging.Logger
	collector *telemetry.Collector

	now func() time.Time
}

// NewHealthChecker builds the health checker over the given fixed backend
// list.
func NewHealthChecker(reg *registry.Registry, backends []registry.Backend, settings *config.DynamicSettings, logger *logging.Logger, collector *telemetry.Collector) *HealthChecker {
	return &HealthChecker{reg: reg, backends: backends, settings: settings, logger: logger, collector: collector, now: time.Now}
}

// Run probes every currently-unhealthy backend once per cycle until ctx is
// cancelled.
func (h *HealthChecker) Run(ctx context.Context) {
	h.logger.Info("health_checker_started")
	for {
		h.checkOnce(ctx)

		interval := time.Duration(h.settings.Get().HealthCheckIntervalSeconds) * time.Second
		select {
		case <-ctx.Done():
			h.logger.Info("health_checker_stopped")
			return
		case <-time.After(interval):
		}
	}
}

func (h *HealthChecker) checkOnce(ctx context.Context) {
	settings := h.settings.Get()
	client := &http.Client{Timeout: 5 * time.Second}
	recoveryDelay := time.Duration(settings.RecoveryDelaySeconds) * time.Second

	for _, b := range h.backends {
		select {
		case <-ctx.Done():
			return
		default:
		}

		snap, ok := h.reg.Lookup(b.Host, b.Port)
		if !ok || snap.IsHealthy {
			continue
		}

		// Only the metrics poller's successful update advances last_check;
		// a failed probe here never touches it, so a stalled sidecar keeps
		// the backend eligible for the next direct probe rather than
		// getting locked out.
		if snap.LastCheck.IsZero() || h.now().Sub(snap.LastCheck) < recoveryDelay {
			continue
		}

		url := fmt.Sprintf("http://%s:%d/api/tags", b.Host, b.Port)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			h.logger.Error("health_probe_request_build_failed", "host", b.Host, "port", b.Port, "error", err.Error())
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			h.logger.Warn("health_probe_failed", "host", b.Host, "port", b.Port, "error", err.Error())
			if h.collector != nil {
				h.collector.ObserveHealthProbe(b, false)
			}
			continue
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			h.logger.Warn("health_probe_failed", "host", b.Host, "port", b.Port, "status", resp.StatusCode)
			if h.collector != nil {
				h.collector.ObserveHealthProbe(b, false)
			}
			continue
		}

		if err := h.reg.MarkHealthy(b.Host, b.Port); err != nil {
			h.logger.Error("mark_healthy_unknown_backend", "host", b.Host, "port", b.Port, "error", err.Error())
			continue
		}
		h.logger.Info("backend_recovered", "host", b.Host, "port", b.Port)
		if h.collector != nil {
			h.collector.ObserveHealthProbe(b, true)
		}
	}
}
