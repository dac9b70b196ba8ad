// Package proxy implements the request dispatch path: select a backend,
// forward the request (buffered or streamed), and guarantee the
// active-request counter is released exactly once regardless of how the
// request ends.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inferlb/inferlb/internal/config"
	"github.com/inferlb/inferlb/internal/logging"
	"github.com/inferlb/inferlb/internal/registry"
	"github.com/inferlb/inferlb/internal/selection"
	"github.com/inferlb/inferlb/internal/telemetry"
)

// streamingPaths are the routes whose response is forwarded chunk-by-chunk
// as it arrives, rather than buffered and returned whole (spec §4.5).
var streamingPaths = map[string]bool{
	"/api/generate": true,
	"/api/chat":     true,
}

// Engine dispatches incoming requests to the least-loaded healthy backend.
type Engine struct {
	reg       *registry.Registry
	strategy  selection.Strategy
	settings  *config.DynamicSettings
	logger    *logging.Logger
	collector *telemetry.Collector
	transport *http.Transport
}

// NewEngine builds a proxy engine sharing one transport (and its connection
// pool) across every dispatched request.
func NewEngine(reg *registry.Registry, strategy selection.Strategy, settings *config.DynamicSettings, logger *logging.Logger, collector *telemetry.Collector) *Engine {
	return &Engine{
		reg:      reg,
		strategy: strategy,
		settings: settings,
		logger:   logger,
		collector: collector,
		transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Handle is the gin catch-all handler for every client-facing route (spec
// §6.3): any method, any path, forwarded verbatim to whichever backend
// scores lowest right now.
func (e *Engine) Handle(c *gin.Context) {
	requestID := uuid.NewString()
	log := e.logger.With("request_id", requestID, "path", c.Request.URL.Path, "method", c.Request.Method)

	healthy := e.reg.HealthySnapshot()
	picked, ok := e.strategy.Select(healthy)
	if !ok {
		log.Warn("no_healthy_backend")
		if e.collector != nil {
			e.collector.ObserveNoHealthyBackend()
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "No healthy servers available"})
		return
	}

	telemetry.SetBackend(c, picked.Host)
	log = log.With("backend", picked.Host, "port", picked.Port)
	c.Writer.Header().Set("X-Request-Id", requestID)

	// Increment before any upstream I/O and guarantee exactly one matching
	// decrement no matter which exit path is taken below.
	if err := e.reg.IncrementRequests(picked.Host, picked.Port); err != nil {
		log.Error("increment_failed", "error", err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "No healthy servers available"})
		return
	}
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := e.reg.DecrementRequests(picked.Host, picked.Port); err != nil {
			log.Error("decrement_failed", "error", err.Error())
		}
	}
	defer release()

	timeout := time.Duration(e.settings.Get().RequestTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	targetURL := fmt.Sprintf("http://%s:%d%s", picked.Host, picked.Port, c.Request.URL.RequestURI())

	outReq, err := http.NewRequestWithContext(ctx, c.Request.Method, targetURL, c.Request.Body)
	if err != nil {
		log.Error("build_upstream_request_failed", "error", err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"detail": err.Error()})
		return
	}
	outReq.Header = c.Request.Header.Clone()
	outReq.Header.Set("X-Request-Id", requestID)

	client := &http.Client{Transport: e.transport}

	resp, err := client.Do(outReq)
	if err != nil {
		log.Warn("dispatch_failed", "error", err.Error())
		if markErr := e.reg.MarkUnhealthy(picked.Host, picked.Port, e.settings.Get().UnhealthyThreshold); markErr != nil {
			log.Error("mark_unhealthy_failed", "error", markErr.Error())
		}
		c.JSON(http.StatusBadGateway, gin.H{"detail": err.Error()})
		return
	}
	defer resp.Body.Close()

	for k, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(k, v)
		}
	}

	streaming := streamingPaths[c.Request.URL.Path]
	if streaming {
		// Force the streaming media type regardless of what upstream sent,
		// matching the original's explicit StreamingResponse media_type.
		c.Writer.Header().Set("Content-Type", "text/event-stream")
	}
	c.Writer.WriteHeader(resp.StatusCode)

	if streaming {
		e.stream(c, resp.Body, log, picked.Host, picked.Port)
		return
	}

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		log.Warn("response_copy_failed", "error", err.Error())
	}
}

// stream forwards the upstream body to the client one read at a time,
// flushing after every chunk so token-by-token output isn't buffered away.
// A write failure, or a read failure after the client's own request context
// has ended, is the client disconnecting and is left unmarked; any other
// read failure (including the request timeout) is a mid-stream upstream
// failure and marks the backend unhealthy, mirroring the original's
// except-wrapped iteration.
func (e *Engine) stream(c *gin.Context, body io.Reader, log *logging.Logger, host string, port int) {
	flusher, canFlush := c.Writer.(http.Flusher)
	buf := make([]byte, 4096)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				log.Warn("stream_write_failed", "error", writeErr.Error())
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Warn("stream_read_failed", "error", err.Error())
				if c.Request.Context().Err() == nil {
					if markErr := e.reg.MarkUnhealthy(host, port, e.settings.Get().UnhealthyThreshold); markErr != nil {
						log.Error("mark_unhealthy_failed", "error", markErr.Error())
					}
				}
			}
			return
		}
	}
}
