package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by lookup scope (bucket, all)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"scope"}, // "bucket", "all"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// EntryBytes tracks the size of written entries
	EntryBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offline_cache_entry_bytes",
			Help:    "Size of cached response bodies in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "open", "put", "get", "match", "keys", "buckets", "delete"
	)
)
