package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"invoicing-backend/internal/shared/metrics"
	"invoicing-backend/internal/shared/telemetry"
)

// Context keys handlers set so the request log can carry pipeline context.
const (
	DocumentKey = "documentNumber"
	RendererKey = "renderer"
	OutcomeKey  = "outcome"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"user_id":     UserIDFromContext(c),
			"tenant":      TenantFromContext(c),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		for _, key := range []string{DocumentKey, RendererKey, OutcomeKey} {
			if v := c.GetString(key); v != "" {
				fields[snake(key)] = v
			}
		}
		metrics.IncHTTPRequest(status)
		telemetry.Info("request.complete", fields)
	}
}

func snake(key string) string {
	var b strings.Builder
	for _, r := range key {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
