package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request count and latency labelled by route template, so
// /fingerprints/:digest is one series regardless of the digest.
func Metrics(m *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prometheus.RecordHTTPRequest(m, c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
