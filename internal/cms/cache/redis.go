package cache

import (
	"context"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/redis/go-redis/v9"

	"github.com/Laisky/laisky-blog-cms/internal/cms/metrics"
	redisLib "github.com/Laisky/laisky-blog-cms/library/db/redis"
	"github.com/Laisky/laisky-blog-cms/library/log"
)

const scanBatch = 500

// Redis stores entries in redis under a namespace prefix.
type Redis struct {
	db        *redisLib.DB
	namespace string
	logger    logSDK.Logger
	metrics   *metrics.Metrics
}

var _ Cache = (*Redis)(nil)

// NewRedis constructs a redis backed cache. namespace defaults to
// redisLib.DefaultKeyPrefix.
func NewRedis(db *redisLib.DB, namespace string, logger logSDK.Logger, m *metrics.Metrics) (*Redis, error) {
	if db == nil {
		return nil, errors.New("redis db is required")
	}
	if namespace == "" {
		namespace = redisLib.DefaultKeyPrefix
	}
	if logger == nil {
		logger = log.Logger.Named("cache_redis")
	}
	return &Redis{db: db, namespace: namespace, logger: logger, metrics: m}, nil
}

func (r *Redis) key(k string) string {
	return r.namespace + k
}

func (r *Redis) fail(op, key string, err error) {
	r.metrics.CacheError(op)
	r.logger.Warn("cache operation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
}

// Get returns the cached bytes for key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.db.Client().Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.fail("get", key, err)
		}
		return nil, false
	}
	return val, true
}

// Set stores value for ttl.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.db.Utils().SetItem(ctx, r.key(key), string(value), ttl); err != nil {
		r.fail("set", key, err)
	}
}

// Delete removes keys.
func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, r.key(k))
	}
	if err := r.db.Client().Del(ctx, full...).Err(); err != nil {
		r.fail("delete", strings.Join(keys, ","), err)
	}
}

// DeleteByPrefix walks the keyspace with SCAN and deletes matches in batches.
func (r *Redis) DeleteByPrefix(ctx context.Context, prefix string) {
	pattern := escapeGlob(r.key(prefix)) + "*"
	client := r.db.Client()

	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			r.fail("scan", prefix, err)
			return
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				r.fail("delete_prefix", prefix, err)
				return
			}
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

// ClearAll removes the whole namespace. Keys outside it are left alone.
func (r *Redis) ClearAll(ctx context.Context) {
	r.DeleteByPrefix(ctx, "")
}

// escapeGlob escapes redis MATCH metacharacters.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
