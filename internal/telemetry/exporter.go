package telemetry

import (
	"context"
	"time"

	"github.com/inferlb/inferlb/internal/registry"
)

// Exporter periodically republishes the registry's state into the
// per-backend gauges, independent of the poll cycles that actually update
// that state.
type Exporter struct {
	collector *Collector
	reg       *registry.Registry
	interval  time.Duration
}

// NewExporter creates a gauge exporter over the given registry.
func NewExporter(collector *Collector, reg *registry.Registry, interval time.Duration) *Exporter {
	return &Exporter{collector: collector, reg: reg, interval: interval}
}

// Start begins the export loop. Blocks until ctx is done.
func (e *Exporter) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.collector.RefreshBackendGauges(e.reg.SnapshotAll())
		}
	}
}
