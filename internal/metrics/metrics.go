package metrics

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerOperations counts review mutations by operation and outcome.
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Review mutations handled by the rating ledger",
		},
		[]string{"operation", "outcome"},
	)

	// LedgerTxDuration observes the duration of ledger transactions.
	LedgerTxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_tx_duration_seconds",
			Help:    "Duration of rating ledger transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Requests to the music catalog API by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	CatalogBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_breaker_state",
			Help: "Catalog circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)

// RecordLedger records one ledger operation.
func RecordLedger(operation, outcome string, d time.Duration) {
	LedgerOperations.WithLabelValues(operation, outcome).Inc()
	LedgerTxDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, route, status string, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordCatalog records one call to the catalog API.
func RecordCatalog(operation, outcome string) {
	CatalogRequests.WithLabelValues(operation, outcome).Inc()
}

// PoolCollector exports pgxpool statistics.
type PoolCollector struct {
	stat func() *pgxpool.Stat

	acquired *prometheus.Desc
	idle     *prometheus.Desc
	total    *prometheus.Desc
	max      *prometheus.Desc
}

// NewPoolCollector reads pool statistics from stat on every scrape.
func NewPoolCollector(stat func() *pgxpool.Stat) *PoolCollector {
	return &PoolCollector{
		stat:     stat,
		acquired: prometheus.NewDesc("db_pool_acquired_conns", "Connections currently in use", nil, nil),
		idle:     prometheus.NewDesc("db_pool_idle_conns", "Idle connections", nil, nil),
		total:    prometheus.NewDesc("db_pool_total_conns", "Open connections", nil, nil),
		max:      prometheus.NewDesc("db_pool_max_conns", "Configured maximum connections", nil, nil),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	if s == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
}
