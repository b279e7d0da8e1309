// Package metrics provides Prometheus instrumentation for the code-nest platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codenest",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codenest",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SessionsTotal counts session lifecycle transitions by resulting status.
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codenest",
			Name:      "sessions_total",
			Help:      "Total session lifecycle transitions by resulting status.",
		},
		[]string{"status"},
	)

	// DisputesTotal counts disputes by stage (opened, resolved).
	DisputesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codenest",
			Name:      "disputes_total",
			Help:      "Total dispute operations by stage.",
		},
		[]string{"stage"},
	)

	// EscrowLockedCents counts value locked into escrow custody.
	EscrowLockedCents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codenest",
		Name:      "escrow_locked_cents_total",
		Help:      "Total value locked into escrow custody, in cents.",
	})

	// EscrowReleasedCents counts value released from custody to partners.
	EscrowReleasedCents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codenest",
		Name:      "escrow_released_cents_total",
		Help:      "Total value released from custody to session partners, in cents.",
	})

	// EscrowRefundedCents counts value refunded from custody to creators.
	EscrowRefundedCents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codenest",
		Name:      "escrow_refunded_cents_total",
		Help:      "Total value refunded from custody to session creators, in cents.",
	})

	// EscrowSplitCents counts value disbursed through dispute splits.
	EscrowSplitCents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codenest",
		Name:      "escrow_split_cents_total",
		Help:      "Total value disbursed through dispute percentage splits, in cents.",
	})

	// EscrowDustCents counts remainder value stranded in custody by floor
	// division during dispute splits. It only ever grows; there is no sweep.
	EscrowDustCents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codenest",
		Name:      "escrow_dust_cents_total",
		Help:      "Total remainder value left in custody by dispute split rounding, in cents.",
	})

	// RatingsRecordedTotal counts session ratings recorded.
	RatingsRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codenest",
		Name:      "ratings_recorded_total",
		Help:      "Total session ratings recorded.",
	})

	// TopUpsTotal counts balance top-ups by result.
	TopUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codenest",
			Name:      "topups_total",
			Help:      "Total balance top-up attempts by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codenest",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "codenest", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "codenest", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "codenest", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SessionsTotal,
		DisputesTotal,
		EscrowLockedCents,
		EscrowReleasedCents,
		EscrowRefundedCents,
		EscrowSplitCents,
		EscrowDustCents,
		RatingsRecordedTotal,
		TopUpsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
