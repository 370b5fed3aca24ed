// Package middleware holds the cross-cutting gin middleware of the HTTP API.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/prometheus"
)

// RequestLogger logs one line per request and records the HTTP metrics.
// The route template (not the raw path) is used as the metric label so
// /matters/42 and /matters/43 share a series.
func RequestLogger(logger logging.Logger, metrics *prometheus.Metrics) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		took := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if metrics != nil {
			metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, statusLabel(status)).Inc()
			metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(took.Seconds())
		}

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", status),
			logging.Duration("took", took),
			logging.String("client", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("request rejected", fields...)
		default:
			logger.Info("request served", fields...)
		}
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
