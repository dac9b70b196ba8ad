package telemetry

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware returns a gin handler that records request totals and latency
// against the backend the request was ultimately dispatched to. Handlers
// that select a backend stash its host on the context under backendKey;
// routes that never reach selection (admin, /metrics) record under "-".
const backendKey = "inferlb.backend"

// SetBackend records which backend a request was dispatched to, for the
// metrics middleware to read once the handler chain finishes.
func SetBackend(c *gin.Context, host string) {
	c.Set(backendKey, host)
}

// Middleware builds the gin handler.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		backend, ok := ctx.Get(backendKey)
		label := "-"
		if ok {
			label = backend.(string)
		}

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(ctx.Writer.Status())

		c.RequestsTotal.WithLabelValues(label, ctx.Request.Method, status).Inc()
		c.RequestDuration.WithLabelValues(label, ctx.Request.Method).Observe(duration)
	}
}
