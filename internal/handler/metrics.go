package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	vaultRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	vaultRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vault_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	vaultOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_ledger_operations_total",
		Help: "Committed ledger operations by kind and asset.",
	}, []string{"kind", "asset"})

	vaultOperationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_ledger_operation_failures_total",
		Help: "Rejected ledger operations by error code.",
	}, []string{"code"})

	vaultAuditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vault_conservation_audits_total",
		Help: "Conservation audit runs by result.",
	}, []string{"result"})

	vaultTotalDeposits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vault_total_deposits_units",
		Help: "Aggregate deposits per vault in smallest units, as of the last committed operation.",
	}, []string{"manager"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		vaultRequestsTotal.WithLabelValues(method, path, status).Inc()
		vaultRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordOperation records a committed deposit or withdrawal.
func RecordOperation(kind, asset string) {
	vaultOperationsTotal.WithLabelValues(kind, asset).Inc()
}

// RecordVaultTotal updates the per-vault aggregate gauge.
func RecordVaultTotal(manager string, total uint64) {
	vaultTotalDeposits.WithLabelValues(manager).Set(float64(total))
}

// RecordOperationFailure records a rejected ledger operation.
func RecordOperationFailure(code string) {
	vaultOperationFailures.WithLabelValues(code).Inc()
}

// RecordAudit records a conservation audit result.
func RecordAudit(ok bool) {
	if ok {
		vaultAuditsTotal.WithLabelValues("consistent").Inc()
	} else {
		vaultAuditsTotal.WithLabelValues("violated").Inc()
	}
}
