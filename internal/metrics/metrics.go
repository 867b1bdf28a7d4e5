// Package metrics provides Prometheus instrumentation for the scoring service.
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
	// HTTPRequestsTotal counts requests by method, route pattern, and status bucket.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainguard",
			Name:      "http_requests_total",
			Help:      "Requests served, by method, route pattern, and status bucket.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency per route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainguard",
			Name:      "http_request_duration_seconds",
			Help:      "Request latency in seconds, by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ScoredTransactionsTotal counts scored transactions by verdict.
	ScoredTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainguard",
			Name:      "scored_transactions_total",
			Help:      "Total transactions scored, by fraud verdict.",
		},
		[]string{"verdict"},
	)

	// RiskScore observes the distribution of returned risk scores.
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainguard",
		Name:      "risk_score",
		Help:      "Distribution of computed risk scores (0-100).",
		Buckets:   []float64{5, 10, 20, 30, 40, 50, 60, 70, 80, 90, 95},
	})

	// ClassifierDuration observes classifier inference latency.
	ClassifierDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chainguard",
		Name:      "classifier_duration_seconds",
		Help:      "Classifier inference duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	// LedgerReadFailuresTotal counts degraded wallet counter reads.
	LedgerReadFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainguard",
		Name:      "ledger_read_failures_total",
		Help:      "Wallet counter reads that degraded to zero defaults.",
	})

	// WriterQueueDepth tracks pending deferred ledger writes.
	WriterQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainguard",
		Name:      "writer_queue_depth",
		Help:      "Number of deferred ledger writes waiting in the queue.",
	})

	// WriterDroppedTotal counts ledger writes dropped because the queue was full.
	WriterDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainguard",
		Name:      "writer_dropped_total",
		Help:      "Deferred ledger writes dropped due to a full queue.",
	})

	// WriterFailuresTotal counts ledger writes that failed at the store.
	WriterFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chainguard",
		Name:      "writer_failures_total",
		Help:      "Deferred ledger writes that failed and were dropped (no retry).",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainguard",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})

	// Connection-pool and runtime gauges sampled by StartDBStatsCollector.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainguard", Name: "db_open_connections",
		Help: "Open connections in the database pool.",
	})
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainguard", Name: "db_idle_connections",
		Help: "Idle connections in the database pool.",
	})
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainguard", Name: "db_in_use_connections",
		Help: "Connections currently executing queries.",
	})
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainguard", Name: "goroutines",
		Help: "Goroutines currently running.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScoredTransactionsTotal,
		RiskScore,
		ClassifierDuration,
		LedgerReadFailuresTotal,
		WriterQueueDepth,
		WriterDroppedTotal,
		WriterFailuresTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector samples sql.DBStats and the goroutine count into the
// gauges above on the given interval until ctx is cancelled.
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
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware records per-request counters and latency. Labels use the route
// pattern rather than the raw path to keep cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()

		c.Next()

		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).
			Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			route,
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler adapts the promhttp scrape handler for gin.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket collapses status codes to their class (2xx, 4xx, ...).
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
