// Package llmcache wraps a gateway.LLMGateway with a redis-backed response
// cache, keyed by a hash of the exact prompt sent to Strategy A. A cache hit
// saves a network round-trip on retried or duplicate jobs (e.g. the same
// source re-submitted, or a retry that reuses an unmodified transcript).
package llmcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"clipforge/ddd/domain/gateway"
	"clipforge/pkg/logger"
	"clipforge/pkg/redisclient"
)

const keyPrefix = "clipforge:llmcache:"

// CachedGateway implements gateway.LLMGateway itself, so it is a drop-in
// substitute for the wrapped Gateway wherever an LLMGateway is wired.
type CachedGateway struct {
	inner gateway.LLMGateway
	redis *redisclient.Client
	ttl   time.Duration
}

func New(inner gateway.LLMGateway, redis *redisclient.Client, ttl time.Duration) *CachedGateway {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedGateway{inner: inner, redis: redis, ttl: ttl}
}

func (c *CachedGateway) Available() bool {
	return c.inner.Available()
}

// Complete returns a cached response for an identical prompt when present,
// otherwise delegates to inner and populates the cache on success. A redis
// GET error is treated as a cache miss and a SET error is logged; neither
// fails the call.
func (c *CachedGateway) Complete(ctx context.Context, prompt string) (string, error) {
	key := cacheKey(prompt)

	if cached, err := c.redis.Raw().Get(ctx, key).Result(); err == nil {
		return cached, nil
	}

	out, err := c.inner.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	if setErr := c.redis.Raw().Set(ctx, key, out, c.ttl).Err(); setErr != nil {
		logger.Warnf("llmcache: failed to populate cache: %v", setErr)
	}
	return out, nil
}

func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return keyPrefix + hex.EncodeToString(sum[:])
}

var _ gateway.LLMGateway = (*CachedGateway)(nil)
