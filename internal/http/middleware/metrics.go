package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-recommender/internal/observability"
)

// Headers written by the recommendation handler and read back for metrics.
const (
	headerRecSource      = "X-Rec-Source"
	headerCacheHit       = "X-Cache-Hit"
	headerFallbackReason = "X-Fallback-Reason"
)

// RecordMetrics observes every request and, for responses carrying a recommendation,
// counts which source served it and whether it came from the cache.
func RecordMetrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.TrackInflight(1)
		defer m.TrackInflight(-1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))

		h := c.Writer.Header()
		if source := h.Get(headerRecSource); source != "" {
			hit, _ := strconv.ParseBool(h.Get(headerCacheHit))
			m.ObserveServed(route, source, hit, h.Get(headerFallbackReason))
		}
	}
}
