package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Cache is a read-through Redis cache for bar series. Horizon optimization
// and walk-forward sweeps reload the same series many times; caching the
// parsed table avoids re-reading and re-validating the source file on every
// run. Cache misses and Redis outages fall back to the loader.
type Cache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewCache creates a series cache on the given Redis client.
func NewCache(rdb redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, prefix: "autotrader:bars:"}
}

// Get fetches a cached series by key. A miss or decode failure returns
// (nil, false) and is never an error for the caller.
func (c *Cache) Get(ctx context.Context, key string) (*Series, bool) {
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("bar cache read failed, falling back to loader")
		return nil, false
	}

	var s Series
	if err := json.Unmarshal(data, &s); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("bar cache entry corrupt, evicting")
		c.rdb.Del(ctx, c.prefix+key)
		return nil, false
	}
	return &s, true
}

// Put stores a series under key with the configured TTL.
func (c *Cache) Put(ctx context.Context, key string, s *Series) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal series for cache: %w", err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write series to cache: %w", err)
	}
	return nil
}

// LoadCSVCached loads a bar table through the cache, keyed by path and
// symbol. A nil cache degrades to a plain LoadCSV.
func LoadCSVCached(ctx context.Context, cache *Cache, path, symbol string) (*Series, error) {
	key := symbol + ":" + path
	if cache != nil {
		if s, ok := cache.Get(ctx, key); ok {
			return s, nil
		}
	}

	s, err := LoadCSV(path, symbol)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if err := cache.Put(ctx, key, s); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("bar cache write failed")
		}
	}
	return s, nil
}
