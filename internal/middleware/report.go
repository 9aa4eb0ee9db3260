package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/pkg/middleware/requestid"
	"github.com/noah-isme/learnhub-api/pkg/observability"
)

// ReportServerErrors forwards errors attached to 5xx responses to Sentry.
func ReportServerErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() < http.StatusInternalServerError || len(c.Errors) == 0 {
			return
		}
		tags := map[string]string{
			"route":  c.FullPath(),
			"method": c.Request.Method,
		}
		if id := requestid.Value(c); id != "" {
			tags["request_id"] = id
		}
		for _, ginErr := range c.Errors {
			observability.CaptureWithTags(ginErr.Err, tags)
		}
	}
}
