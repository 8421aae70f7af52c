package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/server/internal/shared/metrics"
)

// Metrics returns a middleware that records HTTP metrics.
// Paths are labelled by route pattern; unmatched requests share one label.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
