package database

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStat struct{ open, waits int }

func TestStatsCollector_ExportsEverySample(t *testing.T) {
	c := &statsCollector[fakeStat]{
		service: "elearning-api",
		stat:    func() fakeStat { return fakeStat{open: 3, waits: 7} },
		metrics: []statMetric[fakeStat]{
			gauge("test_open_connections", "open", func(s fakeStat) float64 { return float64(s.open) }),
			counter("test_waits_total", "waits", func(s fakeStat) float64 { return float64(s.waits) }),
		},
	}

	expected := `
# HELP test_open_connections open
# TYPE test_open_connections gauge
test_open_connections{service="elearning-api"} 3
# HELP test_waits_total waits
# TYPE test_waits_total counter
test_waits_total{service="elearning-api"} 7
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestRedisStatsCollector_ReadsLivePool(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()

	c := NewRedisStatsCollector(rdb, "elearning-api")

	assert.Equal(t, len(redisPoolMetrics), testutil.CollectAndCount(c))
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(`
# HELP redis_pool_total_connections Open connections to redis.
# TYPE redis_pool_total_connections gauge
redis_pool_total_connections{service="elearning-api"} 1
`), "redis_pool_total_connections"))
}

func TestPostgresPoolMetrics_Names(t *testing.T) {
	names := make([]string, 0, len(postgresPoolMetrics))
	for _, m := range postgresPoolMetrics {
		names = append(names, m.desc.String())
	}
	joined := strings.Join(names, " ")

	for _, want := range []string{"db_pool_acquired_connections", "db_pool_max_connections", "db_pool_empty_acquire_count_total"} {
		assert.Contains(t, joined, want)
	}
}
