// Package cache provides the bucketed response store behind the offline cache.
//
// A Store maps a request identity (method + absolute URL) to a stored
// response snapshot, grouped into named buckets that can be enumerated and
// deleted independently:
//
// - Buckets are created on first write (or explicitly via Open)
// - Entries are immutable snapshots, replaced wholesale on re-cache
// - Lookups report absence through a found flag, never an error
// - Match searches all buckets in creation order
//
// # Basic Usage
//
//	// Pick a backend
//	store, err := cache.New(ctx, cache.Options{
//		Backend:    cache.BackendSQLite,
//		SQLitePath: "offline-cache.db",
//	})
//
//	// Write into a bucket
//	bucket, err := cache.OpenBucket(ctx, store, "quick-orders-v4.2-resilience")
//	entry, err := cache.ResponseToEntry(resp)
//	err = bucket.Put(ctx, cache.NewRequestKey(req), entry)
//
//	// Look up across every bucket
//	entry, found, err := store.Match(ctx, cache.GetKey("https://app.example.com/index.html"))
//	if found {
//		resp := cache.EntryToResponse(entry, req)
//	}
//
// # Backends
//
//   - MemoryStore: process memory, used for tests and ephemeral proxies
//   - SQLiteStore: local database file, survives restarts
//   - RedisStore: shared by several proxy instances
//
// # Metrics
//
// The Manager wrapper exports Prometheus metrics:
//
//   - offline_cache_hits_total{scope} - Cache hits (bucket or all-bucket lookups)
//   - offline_cache_misses_total - Cache misses
//   - offline_cache_entry_bytes - Size of written bodies
//   - offline_cache_errors_total{operation} - Store operation errors
package cache
