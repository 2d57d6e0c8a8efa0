package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keirav/manifold/internal/config"
	"github.com/keirav/manifold/internal/core/ports"
	"github.com/keirav/manifold/internal/logger"
	"github.com/keirav/manifold/internal/util/pattern"
)

// tier is one storage level. A miss is (nil, false, nil); expired entries
// are purged on read and never returned.
type tier interface {
	level() ports.CacheLevel
	get(ctx context.Context, key string) (*envelope, bool, error)
	put(ctx context.Context, key string, env *envelope) error
	delete(ctx context.Context, key string) error
	keys(ctx context.Context) ([]string, error)
	clear(ctx context.Context) error
	size(ctx context.Context) int
}

// TieredCache looks up memory -> disk -> redis, short-circuiting on the
// first hit and promoting it into every faster tier. A failing tier is
// counted and logged but treated as a miss for that tier only, so a dead
// redis never takes the memory tier down with it.
type TieredCache struct {
	log     *logger.StyledLogger
	metrics map[ports.CacheLevel]*tierMetrics
	tiers   []tier
	cfg     config.CacheConfig
}

func New(cfg config.CacheConfig, log *logger.StyledLogger) (*TieredCache, error) {
	tiers := []tier{newMemoryTier(cfg.MemoryItems)}

	if cfg.DiskEnabled {
		dt, err := newDiskTier(cfg.DiskDir)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, dt)
	}

	if cfg.RedisEnabled {
		rt, err := newRedisTier(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, rt)
	}

	return newWithTiers(cfg, tiers, log), nil
}

// NewWithRedisClient builds the cache against an injected redis client,
// used by tests running miniredis.
func NewWithRedisClient(cfg config.CacheConfig, client *redis.Client, log *logger.StyledLogger) (*TieredCache, error) {
	tiers := []tier{newMemoryTier(cfg.MemoryItems)}
	if cfg.DiskEnabled {
		dt, err := newDiskTier(cfg.DiskDir)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, dt)
	}
	tiers = append(tiers, newRedisTierWithClient(client))
	return newWithTiers(cfg, tiers, log), nil
}

func newWithTiers(cfg config.CacheConfig, tiers []tier, log *logger.StyledLogger) *TieredCache {
	metrics := make(map[ports.CacheLevel]*tierMetrics, len(tiers))
	for _, t := range tiers {
		metrics[t.level()] = &tierMetrics{}
	}
	return &TieredCache{cfg: cfg, tiers: tiers, metrics: metrics, log: log}
}

var _ ports.Cache = (*TieredCache)(nil)

func qualifiedKey(key, namespace string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// Get returns the first hit walking the tiers fastest-first, promoting it
// into every tier above the one that answered.
func (c *TieredCache) Get(ctx context.Context, key, namespace string) ([]byte, bool, error) {
	qk := qualifiedKey(key, namespace)

	for i, t := range c.tiers {
		m := c.metrics[t.level()]
		start := time.Now()
		env, ok, err := t.get(ctx, qk)
		m.observe(start)

		if err != nil {
			m.errors.Add(1)
			if c.log != nil {
				c.log.Warn("cache tier error, treating as miss",
					"tier", string(t.level()), "error", err)
			}
			continue
		}
		if !ok {
			m.misses.Add(1)
			continue
		}

		m.hits.Add(1)
		c.promote(ctx, qk, env, i)
		return env.Value, true, nil
	}

	return nil, false, nil
}

// promote writes a lower-tier hit into every faster tier, carrying the
// remaining TTL so promotion never extends an entry's life.
func (c *TieredCache) promote(ctx context.Context, qk string, env *envelope, foundAt int) {
	if foundAt == 0 {
		return
	}

	promoted := *env
	if env.TTL > 0 {
		promoted = *newEnvelope(env.Key, env.Value, env.remainingTTL(time.Now()))
	}

	for i := 0; i < foundAt; i++ {
		t := c.tiers[i]
		if err := t.put(ctx, qk, &promoted); err != nil {
			c.metrics[t.level()].errors.Add(1)
			if c.log != nil {
				c.log.Warn("cache promotion failed", "tier", string(t.level()), "error", err)
			}
		}
	}
}

// Put writes to the named levels, or every configured tier when levels is
// empty. TTL zero falls back to the namespace TTL, then the default.
func (c *TieredCache) Put(ctx context.Context, key string, value []byte, namespace string, ttl time.Duration, levels []ports.CacheLevel) error {
	if ttl <= 0 {
		ttl = c.ttlFor(namespace)
	}
	qk := qualifiedKey(key, namespace)
	env := newEnvelope(qk, value, ttl)

	var firstErr error
	for _, t := range c.tiers {
		if len(levels) > 0 && !containsLevel(levels, t.level()) {
			continue
		}
		m := c.metrics[t.level()]
		start := time.Now()
		err := t.put(ctx, qk, env)
		m.observe(start)
		if err != nil {
			m.errors.Add(1)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.puts.Add(1)
	}
	return firstErr
}

func (c *TieredCache) ttlFor(namespace string) time.Duration {
	if ttl, ok := c.cfg.NamespaceTTLs[namespace]; ok {
		return ttl
	}
	return c.cfg.DefaultTTL
}

func (c *TieredCache) Delete(ctx context.Context, key, namespace string) error {
	qk := qualifiedKey(key, namespace)
	var firstErr error
	for _, t := range c.tiers {
		if err := t.delete(ctx, qk); err != nil {
			c.metrics[t.level()].errors.Add(1)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.metrics[t.level()].deletes.Add(1)
	}
	return firstErr
}

// Invalidate deletes every entry in the namespace whose stripped key
// matches the glob pattern. Returns the count of distinct logical keys
// removed.
func (c *TieredCache) Invalidate(ctx context.Context, pat, namespace string) (int, error) {
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}

	matched := make(map[string]struct{})
	for _, t := range c.tiers {
		keys, err := t.keys(ctx)
		if err != nil {
			c.metrics[t.level()].errors.Add(1)
			if c.log != nil {
				c.log.Warn("cache key listing failed", "tier", string(t.level()), "error", err)
			}
			continue
		}
		for _, qk := range keys {
			if prefix != "" && !strings.HasPrefix(qk, prefix) {
				continue
			}
			stripped := strings.TrimPrefix(qk, prefix)
			if pattern.MatchesGlob(stripped, pat) {
				matched[qk] = struct{}{}
			}
		}
	}

	for qk := range matched {
		for _, t := range c.tiers {
			if err := t.delete(ctx, qk); err != nil {
				c.metrics[t.level()].errors.Add(1)
				continue
			}
			c.metrics[t.level()].deletes.Add(1)
		}
	}
	return len(matched), nil
}

func (c *TieredCache) Clear(ctx context.Context) error {
	var firstErr error
	for _, t := range c.tiers {
		if err := t.clear(ctx); err != nil {
			c.metrics[t.level()].errors.Add(1)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *TieredCache) Sizes(ctx context.Context) map[ports.CacheLevel]int {
	out := make(map[ports.CacheLevel]int, len(c.tiers))
	for _, t := range c.tiers {
		out[t.level()] = t.size(ctx)
	}
	return out
}

func (c *TieredCache) Metrics() map[ports.CacheLevel]ports.CacheTierMetrics {
	out := make(map[ports.CacheLevel]ports.CacheTierMetrics, len(c.metrics))
	for level, m := range c.metrics {
		out[level] = m.snapshot()
	}
	return out
}

// PingRedis probes the redis tier if one is configured. Used by the
// reconnect recovery action.
func (c *TieredCache) PingRedis(ctx context.Context) error {
	for _, t := range c.tiers {
		if rt, ok := t.(*redisTier); ok {
			return rt.Ping(ctx)
		}
	}
	return nil
}

func containsLevel(levels []ports.CacheLevel, level ports.CacheLevel) bool {
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}
