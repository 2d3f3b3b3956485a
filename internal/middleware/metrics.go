package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opentutor/tutor-ops-api/internal/service"
)

// Scrapes and health checks would dominate the request histograms, so they
// are not instrumented.
var uninstrumentedPaths = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Metrics instruments API requests. The route template is used as the path
// label so "/sessions/:id" stays one series no matter how many sessions
// exist; unmatched requests fall back to the raw path.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, skip := uninstrumentedPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
