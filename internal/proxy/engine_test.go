package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferlb/inferlb/internal/config"
	"github.com/inferlb/inferlb/internal/logging"
	"github.com/inferlb/inferlb/internal/registry"
	"github.com/inferlb/inferlb/internal/selection"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(t *testing.T, reg *registry.Registry) *Engine {
	t.Helper()
	settings := config.NewDynamicSettings(config.Dynamic{
		RequestTimeoutSeconds: 5,
		UnhealthyThreshold:    3,
	})
	return NewEngine(reg, selection.NewLeastLoaded(), settings, logging.NewNop(), nil)
}

// S7: no healthy backend returns 503 and changes no registry state.
func TestHandleReturns503WhenNoHealthyBackend(t *testing.T) {
	reg := registry.New([]registry.Backend{{Host: "ollama-1", Port: 11434}})
	require.NoError(t, reg.MarkUnhealthy("ollama-1", 11434, 1))

	engine := newTestEngine(t, reg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader("{}"))
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	engine.Handle(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "No healthy servers available")
	snap, _ := reg.Lookup("ollama-1", 11434)
	assert.False(t, snap.IsHealthy)
	assert.Equal(t, int64(0), snap.ActiveRequests)
}

// Invariant #4: active_requests is incremented exactly once and decremented
// exactly once even when the upstream call succeeds.
func TestHandleIncrementsAndDecrementsExactlyOnce(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	host, port := splitHostPort(t, upstream.URL)
	reg := registry.New([]registry.Backend{{Host: host, Port: port}})
	engine := newTestEngine(t, reg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	engine.Handle(c)

	assert.Equal(t, http.StatusOK, w.Code)
	snap, _ := reg.Lookup(host, port)
	assert.Equal(t, int64(0), snap.ActiveRequests)
}

// S5: if the client disconnects mid-stream, the active-request counter is
// still released exactly once.
func TestStreamReleasesCounterOnClientDisconnect(t *testing.T) {
	blockUntilClosed := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("chunk-1"))
		flusher.Flush()
		<-blockUntilClosed
	}))
	defer upstream.Close()

	host, port := splitHostPort(t, upstream.URL)
	reg := registry.New([]registry.Backend{{Host: host, Port: port}})
	engine := newTestEngine(t, reg)

	clientCtx, disconnect := context.WithCancel(context.Background())
	defer disconnect()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader("{}")).WithContext(clientCtx)
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Handle(c)
	}()

	// Give the handler time to increment and start streaming, then force
	// the upstream connection closed from the client side by cancelling
	// its context. The upstream handler stays blocked until the proxy has
	// returned.
	time.Sleep(50 * time.Millisecond)
	disconnect()
	wg.Wait()
	close(blockUntilClosed)

	snap, _ := reg.Lookup(host, port)
	assert.Equal(t, int64(0), snap.ActiveRequests)
}

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
