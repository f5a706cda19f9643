package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidEntry indicates the cache entry is invalid or corrupted
var ErrInvalidEntry = errors.New("invalid cache entry")

// Store is a persistent key-value store of responses organized into named
// buckets.
//
// Absence is never an error: lookups report it through the found flag.
// Implementations must be safe for concurrent use; each operation is atomic
// per key, and concurrent writes to the same key resolve last-write-wins.
type Store interface {
	// Open creates the bucket if it does not exist yet.
	Open(ctx context.Context, bucket string) error

	// Put stores entry under key in bucket, replacing any previous entry.
	// The bucket is created on first write.
	Put(ctx context.Context, bucket string, key RequestKey, entry *CacheEntry) error

	// Get looks key up in a single bucket.
	Get(ctx context.Context, bucket string, key RequestKey) (*CacheEntry, bool, error)

	// Match looks key up across all buckets in creation order and returns
	// the first hit.
	Match(ctx context.Context, key RequestKey) (*CacheEntry, bool, error)

	// Keys lists the key strings stored in bucket.
	Keys(ctx context.Context, bucket string) ([]string, error)

	// Buckets lists all bucket names in creation order.
	Buckets(ctx context.Context) ([]string, error)

	// Delete removes a bucket and all its entries. It reports whether the
	// bucket existed.
	Delete(ctx context.Context, bucket string) (bool, error)

	// Close releases backend resources.
	Close() error
}

func encodeEntry(entry *CacheEntry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("cache entry cannot be nil")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*CacheEntry, error) {
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}
