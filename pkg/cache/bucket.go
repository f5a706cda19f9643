package cache

import (
	"context"
	"fmt"
)

// Bucket is a handle on one named bucket of a Store.
type Bucket struct {
	name  string
	store Store
}

// OpenBucket opens (creating if needed) the named bucket.
func OpenBucket(ctx context.Context, store Store, name string) (*Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	if err := store.Open(ctx, name); err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", name, err)
	}
	return &Bucket{name: name, store: store}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Put stores entry under key, overwriting any previous entry.
func (b *Bucket) Put(ctx context.Context, key RequestKey, entry *CacheEntry) error {
	return b.store.Put(ctx, b.name, key, entry)
}

// Get looks key up in this bucket only.
func (b *Bucket) Get(ctx context.Context, key RequestKey) (*CacheEntry, bool, error) {
	return b.store.Get(ctx, b.name, key)
}

// Keys lists the keys stored in this bucket.
func (b *Bucket) Keys(ctx context.Context) ([]string, error) {
	return b.store.Keys(ctx, b.name)
}
