package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/inferlb/inferlb/internal/config"
	"github.com/inferlb/inferlb/internal/logging"
	"github.com/inferlb/inferlb/internal/registry"
	"github.com/inferlb/inferlb/internal/telemetry"
)

// MetricsPoller is the single long-lived task that scrapes each backend's
// GPU sidecar and merges the result into the registry. Iteration within a
// cycle is sequential and cycles never overlap: the sleep starts only
// after a full pass completes (spec §4.2).
type MetricsPoller struct {
	reg      *registry.Registry
	backends []registry.Backend
	settings *config.DynamicSettings
	logger   *logging.Logger
	collector *telemetry.Collector
}

// NewMetricsPoller builds the metrics poller over the given fixed backend
// list.
func NewMetricsPoller(reg *registry.Registry, backends []registry.Backend, settings *config.DynamicSettings, logger *logging.Logger, collector *telemetry.Collector) *MetricsPoller {
	return &MetricsPoller{reg: reg, backends: backends, settings: settings, logger: logger, collector: collector}
}

// Run polls every backend once per cycle until ctx is cancelled. A single
// in-flight HTTP call is bounded to 5 seconds, so shutdown finishes
// promptly once the current cycle's call returns.
func (p *MetricsPoller) Run(ctx context.Context) {
	p.logger.Info("metrics_poller_started")
	for {
		p.pollOnce(ctx)

		interval := time.Duration(p.settings.Get().MetricsIntervalSeconds) * time.Second
		select {
		case <-ctx.Done():
			p.logger.Info("metrics_poller_stopped")
			return
		case <-time.After(interval):
		}
	}
}

func (p *MetricsPoller) pollOnce(ctx context.Context) {
	settings := p.settings.Get()
	client := &http.Client{Timeout: 5 * time.Second}

	for _, b := range p.backends {
		select {
		case <-ctx.Done():
			return
		default:
		}

		url := fmt.Sprintf("http://%s%s:%d/metrics", b.Host, settings.SidecarHostSuffix, b.Port+settings.SidecarPortOffset)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			p.fail(b, err)
			continue
		}

		resp, err := client.Do(req)
		if err != nil {
			p.fail(b, err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			p.fail(b, fmt.Errorf("sidecar returned status %d", resp.StatusCode))
			continue
		}

		var doc registry.MetricsDocument
		decodeErr := json.NewDecoder(resp.Body).Decode(&doc)
		resp.Body.Close()
		if decodeErr != nil {
			p.fail(b, fmt.Errorf("unparseable metrics document: %w", decodeErr))
			continue
		}

		if err := p.reg.UpdateMetrics(b.Host, b.Port, doc); err != nil {
			p.logger.Error("update_metrics_unknown_backend", "host", b.Host, "port", b.Port, "error", err.Error())
			continue
		}

		if p.collector != nil {
			p.collector.ObserveMetricsPoll(b, true)
		}
	}
}

func (p *MetricsPoller) fail(b registry.Backend, cause error) {
	settings := p.settings.Get()
	if err := p.reg.MarkUnhealthy(b.Host, b.Port, settings.UnhealthyThreshold); err != nil {
		p.logger.Error("mark_unhealthy_unknown_backend", "host", b.Host, "port", b.Port, "error", err.Error())
		return
	}
	p.logger.Warn("metrics_poll_failed", "host", b.Host, "port", b.Port, "error", cause.Error())
	if p.collector != nil {
		p.collector.ObserveMetricsPoll(b, false)
	}
}
