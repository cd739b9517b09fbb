// Package cache is the optional, best-effort read cache of the cms.
//
// The cache is never a source of truth: every backend error is logged and
// swallowed, and a missing backend degrades to Noop.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-cms/library/log"
)

const (
	// PostTTL is how long a single post read model is cached.
	PostTTL = 10 * time.Minute
	// ListTTL is how long list and search pages are cached.
	ListTTL = 5 * time.Minute
	// CategoryTTL is how long a category read model is cached.
	CategoryTTL = 10 * time.Minute
)

// Cache is a key/value store with TTL.
type Cache interface {
	// Get returns the value and true on hit.
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	// DeleteByPrefix removes every key starting with prefix.
	DeleteByPrefix(ctx context.Context, prefix string)
	// ClearAll removes every key owned by the cache.
	ClearAll(ctx context.Context)
}

// Noop is the cache used when no backend is configured.
type Noop struct{}

var _ Cache = Noop{}

func (Noop) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (Noop) Set(context.Context, string, []byte, time.Duration) {}
func (Noop) Delete(context.Context, ...string)                  {}
func (Noop) DeleteByPrefix(context.Context, string)             {}
func (Noop) ClearAll(context.Context)                           {}

// GetJSON decodes a cached value into dst. A value that fails to decode is
// treated as a miss and evicted.
func GetJSON(ctx context.Context, c Cache, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Logger.Warn("decode cached value", zap.String("key", key), zap.Error(err))
		c.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Logger.Warn("encode cache value", zap.String("key", key), zap.Error(err))
		return
	}
	c.Set(ctx, key, raw, ttl)
}
