package cache

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the stored form of a cache entry in the disk and redis
// tiers. CreatedAt travels with the value so promotion into faster tiers
// can carry the remaining TTL instead of restarting the clock.
type envelope struct {
	Key       string `json:"key"`
	Value     []byte `json:"value"`
	CreatedAt int64  `json:"created_at"` // unix nanos
	TTL       int64  `json:"ttl"`        // nanos, 0 = no expiry
}

func newEnvelope(key string, value []byte, ttl time.Duration) *envelope {
	return &envelope{
		Key:       key,
		Value:     value,
		CreatedAt: time.Now().UnixNano(),
		TTL:       int64(ttl),
	}
}

func (e *envelope) expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.UnixNano()-e.CreatedAt > e.TTL
}

// remainingTTL is the unexpired portion of the original TTL, used when a
// lower-tier hit is promoted upward.
func (e *envelope) remainingTTL(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return 0
	}
	remaining := e.TTL - (now.UnixNano() - e.CreatedAt)
	if remaining < 0 {
		return 0
	}
	return time.Duration(remaining)
}
