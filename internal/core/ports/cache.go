package ports

import (
	"context"
	"time"
)

// CacheLevel names one tier of the cache hierarchy, fastest first.
type CacheLevel string

const (
	CacheLevelMemory CacheLevel = "memory"
	CacheLevelDisk   CacheLevel = "disk"
	CacheLevelRedis  CacheLevel = "redis"
)

// CacheTierMetrics is one tier's counters plus a bounded latency sample.
type CacheTierMetrics struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Puts         int64   `json:"puts"`
	Deletes      int64   `json:"deletes"`
	Errors       int64   `json:"errors"`
	AvgLatencyUs float64 `json:"avg_latency_us"`
}

// Cache is the tiered cache as the rest of the system sees it. A miss is
// (nil, false, nil); tier errors never surface as lookup failures.
type Cache interface {
	Get(ctx context.Context, key, namespace string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, namespace string, ttl time.Duration, levels []CacheLevel) error
	Delete(ctx context.Context, key, namespace string) error
	Invalidate(ctx context.Context, pattern, namespace string) (int, error)
	Clear(ctx context.Context) error
	Sizes(ctx context.Context) map[CacheLevel]int
	Metrics() map[CacheLevel]CacheTierMetrics
}
