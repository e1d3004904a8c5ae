// Package metrics exposes Prometheus instrumentation for the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Uploads counts stored files, creates and replacements alike.
	Uploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casket_uploads_total",
		Help: "Number of file uploads accepted.",
	})

	// Downloads counts responses that delivered content (200, 206, HEAD).
	Downloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casket_downloads_total",
		Help: "Number of file downloads served.",
	})

	// PurgedBuckets counts buckets removed by the retention sweeper.
	PurgedBuckets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "casket_sweeper_purged_buckets_total",
		Help: "Number of expired buckets purged by the sweeper.",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "casket_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

// Middleware records request latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		requestDuration.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

// Register mounts the scrape endpoint on the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}
