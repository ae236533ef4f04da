// Package metrics holds the Prometheus collectors for the HTTP surface, the
// cache-aside layer, notifications, moderation and the database pool.
package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notes"

const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheDegraded = "degraded"

	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by key kind and result (hit, miss, degraded)",
		},
		[]string{"kind", "result"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notifications by outcome",
		},
		[]string{"result"},
	)

	ModerationTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "moderation",
			Name:      "transitions_total",
			Help:      "Applied moderation transitions by entity and resulting status",
		},
		[]string{"entity", "status"},
	)

	DBConnectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Database connection pool stats",
		},
		[]string{"state"},
	)
)

func ObserveCache(kind, result string) {
	CacheRequestsTotal.WithLabelValues(kind, result).Inc()
}

func ObserveNotification(result string) {
	NotificationsTotal.WithLabelValues(result).Inc()
}

func ObserveTransition(entity, status string) {
	ModerationTransitionsTotal.WithLabelValues(entity, status).Inc()
}

// PoolStatsProvider is satisfied by *sql.DB.
type PoolStatsProvider interface {
	Stats() sql.DBStats
}

// PoolStatsCollector copies database pool statistics into DBConnectionPoolSize periodically.
type PoolStatsCollector struct {
	provider PoolStatsProvider
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewPoolStatsCollector(provider PoolStatsProvider) *PoolStatsCollector {
	return &PoolStatsCollector{
		provider: provider,
		stopChan: make(chan struct{}),
	}
}

func (c *PoolStatsCollector) Start(interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopChan:
				return
			}
		}
	}()
}

func (c *PoolStatsCollector) collect() {
	stats := c.provider.Stats()
	DBConnectionPoolSize.WithLabelValues("total").Set(float64(stats.OpenConnections))
	DBConnectionPoolSize.WithLabelValues("idle").Set(float64(stats.Idle))
	DBConnectionPoolSize.WithLabelValues("in_use").Set(float64(stats.InUse))
}

func (c *PoolStatsCollector) Stop() {
	close(c.stopChan)
	c.wg.Wait()
}
