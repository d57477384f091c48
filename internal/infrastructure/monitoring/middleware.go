package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
)

// UnmatchedRoute labels requests no route matched, keeping raw paths out of
// the label set.
const UnmatchedRoute = "unmatched"

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = UnmatchedRoute
		}
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, route, c.Writer.Status(), time.Since(start), reqSize, respSize)
	}
}
