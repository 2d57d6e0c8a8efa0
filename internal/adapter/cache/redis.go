package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keirav/manifold/internal/core/ports"
)

const redisKeyPrefix = "manifold:cache:"

// redisTier is the only tier shared across process instances. Envelopes
// keep their logical created-at so promotion carries remaining TTL; redis
// expiry doubles as an active sweep.
type redisTier struct {
	client *redis.Client
}

func newRedisTier(url string) (*redisTier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &redisTier{client: redis.NewClient(opts)}, nil
}

// newRedisTierWithClient exists for tests running against miniredis.
func newRedisTierWithClient(client *redis.Client) *redisTier {
	return &redisTier{client: client}
}

func (r *redisTier) level() ports.CacheLevel {
	return ports.CacheLevelRedis
}

func (r *redisTier) get(ctx context.Context, key string) (*envelope, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		_ = r.client.Del(ctx, redisKeyPrefix+key).Err()
		return nil, false, nil
	}
	if env.expired(time.Now()) {
		_ = r.client.Del(ctx, redisKeyPrefix+key).Err()
		return nil, false, nil
	}
	return &env, true, nil
}

func (r *redisTier) put(ctx context.Context, key string, env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, time.Duration(env.TTL)).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *redisTier) delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *redisTier) keys(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(redisKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}

func (r *redisTier) clear(ctx context.Context) error {
	keys, err := r.keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := r.client.Del(ctx, redisKeyPrefix+k).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *redisTier) size(ctx context.Context) int {
	keys, err := r.keys(ctx)
	if err != nil {
		return 0
	}
	return len(keys)
}

// Ping verifies liveness, used by the redis reconnect recovery action.
func (r *redisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
