package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferlb/inferlb/internal/config"
	"github.com/inferlb/inferlb/internal/logging"
	"github.com/inferlb/inferlb/internal/registry"
)

// S4: an unhealthy backend recovers once a direct /api/tags probe succeeds,
// but only after the recovery delay has elapsed since its last check.
func TestHealthCheckerRecoversAfterDelay(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	host, port := splitHostPort(t, upstream.URL)
	reg := registry.New([]registry.Backend{{Host: host, Port: port}})
	require.NoError(t, reg.MarkUnhealthy(host, port, 1))
	// Set last_check via a real metrics update (with a zero recovery delay
	// it is old enough at once), then immediately re-fail it so is_healthy
	// flips back down without advancing last_check again.
	require.NoError(t, reg.UpdateMetrics(host, port, registry.MetricsDocument{}))
	require.NoError(t, reg.MarkUnhealthy(host, port, 1))

	settings := config.NewDynamicSettings(config.Dynamic{RecoveryDelaySeconds: 0})
	checker := NewHealthChecker(reg, reg.Backends(), settings, logging.NewNop(), nil)

	checker.checkOnce(context.Background())

	snap, _ := reg.Lookup(host, port)
	assert.True(t, snap.IsHealthy)
}

// A probe before the recovery delay has elapsed must not touch the
// backend's state.
func TestHealthCheckerSkipsBeforeRecoveryDelay(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	host, port := splitHostPort(t, upstream.URL)
	reg := registry.New([]registry.Backend{{Host: host, Port: port}})
	require.NoError(t, reg.UpdateMetrics(host, port, registry.MetricsDocument{}))
	require.NoError(t, reg.MarkUnhealthy(host, port, 1))

	settings := config.NewDynamicSettings(config.Dynamic{RecoveryDelaySeconds: 3600})
	checker := NewHealthChecker(reg, reg.Backends(), settings, logging.NewNop(), nil)

	checker.checkOnce(context.Background())

	snap, _ := reg.Lookup(host, port)
	assert.False(t, snap.IsHealthy)
}

// A failed direct probe must not update last_check, so the next metrics
// poll remains the sole anchor for the recovery delay.
func TestHealthCheckerDoesNotAdvanceLastCheckOnFailure(t *testing.T) {
	reg := registry.New([]registry.Backend{{Host: "unreachable-host", Port: 11434}})
	require.NoError(t, reg.UpdateMetrics("unreachable-host", 11434, registry.MetricsDocument{}))
	require.NoError(t, reg.MarkUnhealthy("unreachable-host", 11434, 1))

	before, _ := reg.Lookup("unreachable-host", 11434)

	settings := config.NewDynamicSettings(config.Dynamic{RecoveryDelaySeconds: 0})
	checker := NewHealthChecker(reg, reg.Backends(), settings, logging.NewNop(), nil)
	checker.checkOnce(context.Background())

	after, _ := reg.Lookup("unreachable-host", 11434)
	assert.False(t, after.IsHealthy)
	assert.True(t, before.LastCheck.Equal(after.LastCheck))
}

func TestHealthCheckerRunStopsOnContextCancel(t *testing.T) {
	reg := registry.New([]registry.Backend{{Host: "unreachable-host", Port: 11434}})
	settings := config.NewDynamicSettings(config.Dynamic{HealthCheckIntervalSeconds: 60, RecoveryDelaySeconds: 0})
	checker := NewHealthChecker(reg, reg.Backends(), settings, logging.NewNop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("health checker did not stop after context cancellation")
	}
}
