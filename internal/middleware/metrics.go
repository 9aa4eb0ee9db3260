package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/service"
)

// Metrics records method, route template and status for every request.
// Unmatched routes are grouped under a single label to bound cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
