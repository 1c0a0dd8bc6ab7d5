package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type statMetric[S any] struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(S) float64
}

// statsCollector exports a snapshot taken by stat on every scrape.
type statsCollector[S any] struct {
	service string
	stat    func() S
	metrics []statMetric[S]
}

func (c *statsCollector[S]) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *statsCollector[S]) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(s), c.service)
	}
}

func gauge[S any](name, help string, v func(S) float64) statMetric[S] {
	return statMetric[S]{prometheus.NewDesc(name, help, []string{"service"}, nil), prometheus.GaugeValue, v}
}

func counter[S any](name, help string, v func(S) float64) statMetric[S] {
	return statMetric[S]{prometheus.NewDesc(name, help, []string{"service"}, nil), prometheus.CounterValue, v}
}

var postgresPoolMetrics = []statMetric[*pgxpool.Stat]{
	gauge("db_pool_acquired_connections", "Connections currently checked out of the pool.",
		func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
	gauge("db_pool_idle_connections", "Idle connections in the pool.",
		func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
	gauge("db_pool_total_connections", "Open connections in the pool.",
		func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
	gauge("db_pool_max_connections", "Configured pool ceiling.",
		func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
	counter("db_pool_acquire_count_total", "Successful acquires.",
		func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }),
	counter("db_pool_acquire_duration_seconds_total", "Time spent waiting in acquire.",
		func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }),
	counter("db_pool_empty_acquire_count_total", "Acquires that had to wait for a free connection.",
		func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }),
	counter("db_pool_canceled_acquire_count_total", "Acquires abandoned by their context.",
		func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }),
}

var redisPoolMetrics = []statMetric[*redis.PoolStats]{
	gauge("redis_pool_total_connections", "Open connections to redis.",
		func(s *redis.PoolStats) float64 { return float64(s.TotalConns) }),
	gauge("redis_pool_idle_connections", "Idle connections to redis.",
		func(s *redis.PoolStats) float64 { return float64(s.IdleConns) }),
	counter("redis_pool_hits_total", "Connections reused from the pool.",
		func(s *redis.PoolStats) float64 { return float64(s.Hits) }),
	counter("redis_pool_misses_total", "Connections that had to be dialled.",
		func(s *redis.PoolStats) float64 { return float64(s.Misses) }),
	counter("redis_pool_timeouts_total", "Waits for a pool slot that timed out.",
		func(s *redis.PoolStats) float64 { return float64(s.Timeouts) }),
}

// NewPoolStatsCollector exports pgxpool statistics.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) prometheus.Collector {
	return &statsCollector[*pgxpool.Stat]{service: service, stat: pool.Stat, metrics: postgresPoolMetrics}
}

// NewRedisStatsCollector exports the go-redis connection pool statistics
// backing the session store and the realtime fan-out.
func NewRedisStatsCollector(client *redis.Client, service string) prometheus.Collector {
	return &statsCollector[*redis.PoolStats]{service: service, stat: client.PoolStats, metrics: redisPoolMetrics}
}

// RegisterPoolMetrics registers the postgres and redis pool collectors with
// the default registry. Either client may be nil.
func RegisterPoolMetrics(pool *pgxpool.Pool, rdb *redis.Client, service string) {
	if pool != nil {
		prometheus.MustRegister(NewPoolStatsCollector(pool, service))
	}
	if rdb != nil {
		prometheus.MustRegister(NewRedisStatsCollector(rdb, service))
	}
}
