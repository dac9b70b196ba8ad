package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferlb/inferlb/internal/config"
	"github.com/inferlb/inferlb/internal/logging"
	"github.com/inferlb/inferlb/internal/registry"
)

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u := strings.TrimPrefix(rawURL, "http://")
	parts := strings.Split(u, ":")
	require.Len(t, parts, 2)
	port := 0
	for _, r := range parts[1] {
		if r < '0' || r > '9' {
			break
		}
		port = port*10 + int(r-'0')
	}
	return parts[0], port
}

// S2: a successful sidecar scrape merges telemetry and resets failures.
func TestMetricsPollerUpdatesRegistryOnSuccess(t *testing.T) {
	sidecar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(registry.MetricsDocument{
			ActiveRequests: 2,
			GPUUtilization: 55,
		})
	}))
	defer sidecar.Close()

	host, monitorPort := splitHostPort(t, sidecar.URL)
	// With an empty suffix and zero offset the sidecar URL collapses to
	// exactly the backend's own host:port, which is what the fake server
	// listens on.
	backendHost := host
	backendPort := monitorPort

	reg := registry.New([]registry.Backend{{Host: backendHost, Port: backendPort}})
	settings := config.NewDynamicSettings(config.Dynamic{
		UnhealthyThreshold: 3,
		SidecarHostSuffix:  "",
		SidecarPortOffset:  0,
	})

	p := NewMetricsPoller(reg, reg.Backends(), settings, logging.NewNop(), nil)
	p.pollOnce(context.Background())

	snap, ok := reg.Lookup(backendHost, backendPort)
	require.True(t, ok)
	assert.True(t, snap.IsHealthy)
	assert.Equal(t, int64(2), snap.ActiveRequests)
	assert.Equal(t, 55, snap.GPUUtilization)
}

// S3: repeated scrape failures trip is_healthy at the configured threshold.
func TestMetricsPollerTripsUnhealthyAtThreshold(t *testing.T) {
	reg := registry.New([]registry.Backend{{Host: "unreachable-host", Port: 11434}})
	settings := config.NewDynamicSettings(config.Dynamic{
		UnhealthyThreshold: 2,
		SidecarHostSuffix:  "-monitor",
		SidecarPortOffset:  1000,
	})

	p := NewMetricsPoller(reg, reg.Backends(), settings, logging.NewNop(), nil)

	p.pollOnce(context.Background())
	snap, _ := reg.Lookup("unreachable-host", 11434)
	assert.True(t, snap.IsHealthy)
	assert.Equal(t, 1, snap.ConsecutiveFailures)

	p.pollOnce(context.Background())
	snap, _ = reg.Lookup("unreachable-host", 11434)
	assert.False(t, snap.IsHealthy)
	assert.Equal(t, 2, snap.ConsecutiveFailures)
}

func TestMetricsPollerRunStopsOnContextCancel(t *testing.T) {
	reg := registry.New([]registry.Backend{{Host: "unreachable-host", Port: 11434}})
	settings := config.NewDynamicSettings(config.Dynamic{
		MetricsIntervalSeconds: 60,
		UnhealthyThreshold:     3,
		SidecarHostSuffix:      "-monitor",
		SidecarPortOffset:      1000,
	})
	p := NewMetricsPoller(reg, reg.Backends(), settings, logging.NewNop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}
}
