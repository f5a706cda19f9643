package cache

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces all keys written by RedisStore.
const DefaultRedisPrefix = "offline-cache"

// RedisStore keeps buckets in Redis.
//
// Layout:
//
//	<prefix>:buckets        sorted set of bucket names, scored by creation sequence
//	<prefix>:bucket_seq     creation sequence counter
//	<prefix>:bucket:<name>  hash of request key -> JSON entry
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (r *RedisStore) indexKey() string {
	return r.prefix + ":buckets"
}

func (r *RedisStore) seqKey() string {
	return r.prefix + ":bucket_seq"
}

func (r *RedisStore) bucketKey(bucket string) string {
	return r.prefix + ":bucket:" + bucket
}

func (r *RedisStore) Open(ctx context.Context, bucket string) error {
	_, err := r.redis.ZScore(ctx, r.indexKey(), bucket).Result()
	if err == nil {
		return nil
	}
	if err != redis.Nil {
		return fmt.Errorf("redis zscore: %w", err)
	}

	seq, err := r.redis.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	// NX keeps the first creation sequence if two writers race
	if err := r.redis.ZAddNX(ctx, r.indexKey(), redis.Z{Score: float64(seq), Member: bucket}).Err(); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

func (r *RedisStore) Put(ctx context.Context, bucket string, key RequestKey, entry *CacheEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := r.Open(ctx, bucket); err != nil {
		return err
	}
	if err := r.redis.HSet(ctx, r.bucketKey(bucket), key.String(), data).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, bucket string, key RequestKey) (*CacheEntry, bool, error) {
	data, err := r.redis.HGet(ctx, r.bucketKey(bucket), key.String()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget: %w", err)
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func (r *RedisStore) Match(ctx context.Context, key RequestKey) (*CacheEntry, bool, error) {
	buckets, err := r.Buckets(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(buckets) == 0 {
		return nil, false, nil
	}

	field := key.String()
	cmds := make([]*redis.StringCmd, len(buckets))
	_, err = r.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, bucket := range buckets {
			cmds[i] = pipe.HGet(ctx, r.bucketKey(bucket), field)
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, false, fmt.Errorf("redis pipeline: %w", err)
	}

	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("redis hget: %w", err)
		}
		entry, err := decodeEntry(data)
		if err != nil {
			return nil, false, err
		}
		return entry, true, nil
	}
	return nil, false, nil
}

func (r *RedisStore) Keys(ctx context.Context, bucket string) ([]string, error) {
	keys, err := r.redis.HKeys(ctx, r.bucketKey(bucket)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisStore) Buckets(ctx context.Context) ([]string, error) {
	names, err := r.redis.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return names, nil
}

func (r *RedisStore) Delete(ctx context.Context, bucket string) (bool, error) {
	var removed *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.bucketKey(bucket))
		removed = pipe.ZRem(ctx, r.indexKey(), bucket)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis delete bucket: %w", err)
	}
	return removed.Val() > 0, nil
}

// Close closes the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.redis.Close()
}
