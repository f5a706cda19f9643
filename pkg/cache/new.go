package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a store backend.
type Options struct {
	// Backend is one of BackendMemory, BackendSQLite, BackendRedis
	Backend string

	// SQLitePath is the database file for BackendSQLite
	SQLitePath string

	// RedisAddr is the host:port for BackendRedis
	RedisAddr string

	// RedisDB is the Redis database number
	RedisDB int

	// RedisPrefix namespaces Redis keys (default: DefaultRedisPrefix)
	RedisPrefix string
}

// New builds the configured backend wrapped in a Manager.
func New(ctx context.Context, opts Options) (*Manager, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewManager(NewMemoryStore()), nil

	case BackendSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = "offline-cache.db"
		}
		store, err := NewSQLiteStore(ctx, path)
		if err != nil {
			return nil, err
		}
		return NewManager(store), nil

	case BackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
			DB:   opts.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.RedisAddr, err)
		}
		return NewManager(NewRedisStore(redisClient, opts.RedisPrefix)), nil

	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
