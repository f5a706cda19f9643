// Package strategy implements the per-class caching strategies:
// cache-first for remote assets, network-first for navigations and
// stale-while-revalidate for everything else.
package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/Sternrassler/offline-cache/pkg/cache"
	"github.com/Sternrassler/offline-cache/pkg/classify"
	"github.com/Sternrassler/offline-cache/pkg/client"
	"github.com/Sternrassler/offline-cache/pkg/generation"
	"github.com/rs/zerolog"
)

// Strategy names used in logs and metrics.
const (
	NameCacheFirst           = "cache_first"
	NameNetworkFirst         = "network_first"
	NameStaleWhileRevalidate = "stale_while_revalidate"
)

// PlaceholderBody is the body of the response synthesized when a remote
// asset is neither cached nor fetchable.
const PlaceholderBody = "Network error during image fetch"

var (
	// ErrBypass is returned by Handle for requests the cache does not handle.
	ErrBypass = errors.New("request bypasses the offline cache")

	// ErrNoResponse is returned when a strategy has neither a cached entry
	// nor a network response to offer.
	ErrNoResponse = errors.New("no response available")
)

// DefaultFallbackPaths is the navigation fallback chain, tried in order.
var DefaultFallbackPaths = []string{"/index.html", "/"}

// Config configures an Engine.
type Config struct {
	Store   cache.Store
	Fetcher client.Fetcher
	Names   generation.Names

	// Origin resolves the navigation fallback paths. When nil the
	// scheme and host of the failed request are used.
	Origin *url.URL

	// FallbackPaths overrides DefaultFallbackPaths
	FallbackPaths []string

	Logger zerolog.Logger
}

// Engine executes caching strategies against a store and a fetcher.
type Engine struct {
	store     cache.Store
	fetcher   client.Fetcher
	names     generation.Names
	origin    *url.URL
	fallbacks []string
	logger    zerolog.Logger
	tasks     background

	// writeMu orders writes against Retire
	writeMu sync.RWMutex
	retired bool
}

// New creates a strategy engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store cannot be nil")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if cfg.Names.Static == "" || cfg.Names.Dynamic == "" {
		return nil, fmt.Errorf("bucket names must be set (static=%q, dynamic=%q)", cfg.Names.Static, cfg.Names.Dynamic)
	}

	fallbacks := cfg.FallbackPaths
	if len(fallbacks) == 0 {
		fallbacks = DefaultFallbackPaths
	}

	return &Engine{
		store:     cfg.Store,
		fetcher:   cfg.Fetcher,
		names:     cfg.Names,
		origin:    cfg.Origin,
		fallbacks: fallbacks,
		logger:    cfg.Logger.With().Str("component", "strategy").Logger(),
	}, nil
}

// Names returns the buckets this engine writes to.
func (e *Engine) Names() generation.Names {
	return e.names
}

// Handle dispatches req to the strategy for class.
func (e *Engine) Handle(class classify.Class, req *http.Request) (*http.Response, error) {
	switch class {
	case classify.RemoteAsset:
		return e.CacheFirst(req)
	case classify.Navigation:
		return e.NetworkFirst(req)
	case classify.Generic:
		return e.StaleWhileRevalidate(req)
	default:
		return nil, ErrBypass
	}
}

// Wait blocks until all background writes and revalidations started so far
// have finished. Production callers never need it.
func (e *Engine) Wait(ctx context.Context) error {
	return e.tasks.Wait(ctx)
}

// Retire stops the engine from writing to the store. Writes already under
// way finish before Retire returns and later ones are dropped, so a
// superseded generation cannot recreate its bucket after garbage
// collection. Lookups keep working.
func (e *Engine) Retire() {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if !e.retired {
		e.retired = true
		e.logger.Debug().Str("static_bucket", e.names.Static).Msg("Engine retired")
	}
}

// CacheFirst answers from any bucket when possible. On a miss it fetches,
// stores successful responses in the dynamic bucket and returns them. A
// network failure yields a 408 placeholder, never an error.
func (e *Engine) CacheFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	key := cache.NewRequestKey(req)

	if entry, ok := e.lookup(ctx, key); ok {
		StrategyResponses.WithLabelValues(NameCacheFirst, sourceCache).Inc()
		return cache.EntryToResponse(entry, req), nil
	}

	resp, entry, err := e.fetch(req)
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("url", req.URL.String()).
			Msg("Remote asset unavailable, returning placeholder")
		StrategyResponses.WithLabelValues(NameCacheFirst, sourcePlaceholder).Inc()
		return placeholderResponse(req), nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		e.writeBehind(ctx, e.names.Dynamic, key, entry)
	}

	StrategyResponses.WithLabelValues(NameCacheFirst, sourceNetwork).Inc()
	return resp, nil
}

// NetworkFirst fetches and stores any delivered response in the static
// bucket. On network failure it walks the fallback chain and returns the
// first cached document, or ErrNoResponse when none is cached.
func (e *Engine) NetworkFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	resp, entry, err := e.fetch(req)
	if err == nil {
		e.writeBehind(ctx, e.names.Static, cache.NewRequestKey(req), entry)
		StrategyResponses.WithLabelValues(NameNetworkFirst, sourceNetwork).Inc()
		return resp, nil
	}

	e.logger.Debug().
		Err(err).
		Str("url", req.URL.String()).
		Msg("Navigation fetch failed, trying offline fallback")

	for _, key := range e.fallbackKeys(req) {
		if entry, ok := e.lookup(ctx, key); ok {
			StrategyResponses.WithLabelValues(NameNetworkFirst, sourceFallback).Inc()
			return cache.EntryToResponse(entry, req), nil
		}
	}

	StrategyResponses.WithLabelValues(NameNetworkFirst, sourceNone).Inc()
	return nil, fmt.Errorf("%w: no cached document for %s: %w", ErrNoResponse, req.URL, err)
}

type fetchResult struct {
	resp *http.Response
	err  error
}

// StaleWhileRevalidate starts a fetch and a cache lookup together. A hit is
// returned at once; the fetch keeps running and refreshes the static bucket
// when it yields exactly 200. On a miss the fetch result is awaited. When
// both miss, the network error is returned wrapped in ErrNoResponse.
func (e *Engine) StaleWhileRevalidate(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	key := cache.NewRequestKey(req)

	// The revalidation must survive the caller going away after a hit
	netReq := req.Clone(context.WithoutCancel(ctx))
	fetched := make(chan fetchResult, 1)

	e.tasks.Go(ctx, func(bg context.Context) {
		resp, entry, err := e.fetch(netReq)
		fetched <- fetchResult{resp: resp, err: err}
		if err != nil {
			return
		}
		if resp.StatusCode == http.StatusOK {
			e.put(bg, e.names.Static, key, entry)
		}
	})

	if entry, ok := e.lookup(ctx, key); ok {
		StrategyResponses.WithLabelValues(NameStaleWhileRevalidate, sourceCache).Inc()
		return cache.EntryToResponse(entry, req), nil
	}

	res := <-fetched
	if res.err != nil {
		e.logger.Warn().
			Err(res.err).
			Str("url", req.URL.String()).
			Msg("Cache miss and network failure")
		StrategyResponses.WithLabelValues(NameStaleWhileRevalidate, sourceNone).Inc()
		return nil, fmt.Errorf("%w: %w", ErrNoResponse, res.err)
	}

	StrategyResponses.WithLabelValues(NameStaleWhileRevalidate, sourceNetwork).Inc()
	res.resp.Request = req
	return res.resp, nil
}

// fetch performs the network request and snapshots the response. A body
// that cannot be read counts as a network failure.
func (e *Engine) fetch(req *http.Request) (*http.Response, *cache.CacheEntry, error) {
	resp, err := e.fetcher.Do(req)
	if err != nil {
		return nil, nil, err
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("snapshot %s: %w", req.URL, err)
	}
	if entry.URL == "" {
		entry.URL = req.URL.String()
	}
	return resp, entry, nil
}

// lookup searches all buckets. Store errors are logged and treated as a
// miss so a broken backend degrades to network-only behaviour.
func (e *Engine) lookup(ctx context.Context, key cache.RequestKey) (*cache.CacheEntry, bool) {
	entry, ok, err := e.store.Match(ctx, key)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache lookup failed")
		return nil, false
	}
	return entry, ok
}

// writeBehind stores entry in the background.
func (e *Engine) writeBehind(ctx context.Context, bucket string, key cache.RequestKey, entry *cache.CacheEntry) {
	e.tasks.Go(ctx, func(bg context.Context) {
		e.put(bg, bucket, key, entry)
	})
}

// put writes entry, logging and counting failures instead of returning them.
func (e *Engine) put(ctx context.Context, bucket string, key cache.RequestKey, entry *cache.CacheEntry) {
	e.writeMu.RLock()
	defer e.writeMu.RUnlock()

	if e.retired {
		BackgroundWrites.WithLabelValues("dropped").Inc()
		e.logger.Debug().
			Str("bucket", bucket).
			Str("key", key.String()).
			Msg("Cache write dropped by retired engine")
		return
	}

	if err := e.store.Put(ctx, bucket, key, entry); err != nil {
		BackgroundWrites.WithLabelValues("failed").Inc()
		e.logger.Warn().
			Err(err).
			Str("bucket", bucket).
			Str("key", key.String()).
			Msg("Background cache write failed")
		return
	}
	BackgroundWrites.WithLabelValues("ok").Inc()
}

// fallbackKeys resolves the fallback chain against the origin.
func (e *Engine) fallbackKeys(req *http.Request) []cache.RequestKey {
	base := e.origin
	if base == nil {
		base = &url.URL{Scheme: req.URL.Scheme, Host: req.URL.Host}
	}

	keys := make([]cache.RequestKey, 0, len(e.fallbacks))
	for _, path := range e.fallbacks {
		ref, err := url.Parse(path)
		if err != nil {
			continue
		}
		keys = append(keys, cache.GetKey(base.ResolveReference(ref).String()))
	}
	return keys
}

func placeholderResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:        strconv.Itoa(http.StatusRequestTimeout) + " " + http.StatusText(http.StatusRequestTimeout),
		StatusCode:    http.StatusRequestTimeout,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Body:          io.NopCloser(bytes.NewReader([]byte(PlaceholderBody))),
		ContentLength: int64(len(PlaceholderBody)),
		Request:       req,
	}
}
