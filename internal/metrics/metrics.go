// Package metrics exposes Prometheus counters for the HTTP layer and the
// share lifecycle.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Denial reasons reported by fileshare_access_denied_total.
const (
	ReasonNotFound  = "not_found"
	ReasonInactive  = "inactive"
	ReasonExpired   = "expired"
	ReasonExhausted = "exhausted"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileshare_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fileshare_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_uploads_total",
		Help: "Shares created.",
	})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_upload_bytes_total",
		Help: "Bytes accepted by uploads.",
	})

	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_downloads_total",
		Help: "Downloads served.",
	})

	accessDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fileshare_access_denied_total",
		Help: "Inspect or download attempts refused, by reason.",
	}, []string{"reason"})

	revocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_revocations_total",
		Help: "Shares revoked.",
	})

	cleanupEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fileshare_cleanup_enqueued_total",
		Help: "Blob deletions handed to the cleanup queue, by reason.",
	}, []string{"reason"})

	reclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fileshare_reclaimed_total",
		Help: "Blobs of expired shares removed by the reclaimer.",
	})
)

func ObserveUpload(size int64) {
	uploadsTotal.Inc()
	uploadBytesTotal.Add(float64(size))
}

func ObserveDownload() { downloadsTotal.Inc() }

func ObserveDenied(reason string) { accessDeniedTotal.WithLabelValues(reason).Inc() }

func ObserveRevocation() { revocationsTotal.Inc() }

func ObserveCleanupEnqueued(reason string) { cleanupEnqueuedTotal.WithLabelValues(reason).Inc() }

func ObserveReclaim() { reclaimedTotal.Inc() }

// Middleware records request count and latency. The route template is used
// as the path label so access keys never become label values.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
