// Package redis wraps the go-redis client used as the optional cache backend.
package redis

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	gredis "github.com/Laisky/go-redis/v2"
	"github.com/redis/go-redis/v9"
)

// DB is a wrapper for go-redis
type DB struct {
	client *redis.Client
	db     *gredis.Utils
}

// NewDB creates a new DB instance
func NewDB(opt *redis.Options) *DB {
	rdb := redis.NewClient(opt)
	rutils := gredis.NewRedisUtils(rdb)

	return &DB{
		client: rdb,
		db:     rutils,
	}
}

// NewDBFromURL creates a DB from a `redis://` connection url.
func NewDBFromURL(url string) (*DB, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return NewDB(opt), nil
}

// Client returns the raw go-redis client.
func (db *DB) Client() *redis.Client {
	return db.client
}

// Utils returns the Laisky/go-redis helpers bound to the same client.
func (db *DB) Utils() *gredis.Utils {
	return db.db
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return errors.Wrap(db.client.Ping(ctx).Err(), "ping redis")
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.client.Close()
}
