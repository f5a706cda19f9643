package generation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Sternrassler/offline-cache/pkg/cache"
	"github.com/Sternrassler/offline-cache/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for generation management.
var (
	prepopulatedEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offline_cache_prepopulated_entries",
		Help: "Number of manifest entries written by the last successful pre-population",
	})

	bucketsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_buckets_deleted_total",
		Help: "Stale bucket deletions by result",
	}, []string{"result"}) // "deleted", "failed"
)

// DefaultConcurrency bounds parallel manifest fetches.
const DefaultConcurrency = 4

// Config configures a generation manager.
type Config struct {
	// Names are the current bucket names
	Names Names

	// Manifest lists absolute or root-relative URLs to pre-cache
	Manifest []string

	// Origin resolves root-relative manifest URLs
	Origin *url.URL

	// Concurrency bounds parallel manifest fetches (default: DefaultConcurrency)
	Concurrency int
}

// Manager pre-populates and garbage-collects the buckets of one generation.
type Manager struct {
	store   cache.Store
	fetcher client.Fetcher
	config  Config
	logger  zerolog.Logger
}

// NewManager creates a generation manager.
func NewManager(store cache.Store, fetcher client.Fetcher, cfg Config, logger zerolog.Logger) *Manager {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if fetcher == nil {
		panic("fetcher cannot be nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Manager{
		store:   store,
		fetcher: fetcher,
		config:  cfg,
		logger:  logger.With().Str("static_bucket", cfg.Names.Static).Logger(),
	}
}

// Names returns the current bucket names.
func (m *Manager) Names() Names {
	return m.config.Names
}

// ResolveManifest turns the manifest into absolute URLs, dropping
// duplicates while keeping order.
func (m *Manager) ResolveManifest() ([]string, error) {
	seen := make(map[string]bool, len(m.config.Manifest))
	out := make([]string, 0, len(m.config.Manifest))

	for _, raw := range m.config.Manifest {
		abs, err := ResolveURL(m.config.Origin, raw)
		if err != nil {
			return nil, err
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out, nil
}

// ResolveURL resolves raw against origin. Absolute URLs are returned as is;
// root-relative URLs need an origin.
func ResolveURL(origin *url.URL, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if origin == nil {
		return "", fmt.Errorf("relative url %q needs an origin", raw)
	}
	return origin.ResolveReference(u).String(), nil
}

type fetched struct {
	key   cache.RequestKey
	entry *cache.CacheEntry
}

// Prepopulate fetches every manifest URL and writes them into the static
// bucket. It is all-or-nothing with respect to the network: if any entry
// fails to fetch or answers with a non-2xx status, nothing is written and
// a *ManifestError is returned.
func (m *Manager) Prepopulate(ctx context.Context) error {
	start := time.Now()

	urls, err := m.ResolveManifest()
	if err != nil {
		return fmt.Errorf("resolve manifest: %w", err)
	}

	results := make([]fetched, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Concurrency)

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			entry, err := m.fetchEntry(gctx, u)
			if err != nil {
				return err
			}
			results[i] = fetched{key: cache.GetKey(u), entry: entry}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		m.logger.Error().Err(err).Int("manifest_size", len(urls)).Msg("Pre-population failed")
		return err
	}

	bucket, err := cache.OpenBucket(ctx, m.store, m.config.Names.Static)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := bucket.Put(ctx, r.key, r.entry); err != nil {
			return fmt.Errorf("store %s: %w", r.key.URL, err)
		}
	}

	prepopulatedEntries.Set(float64(len(results)))
	m.logger.Info().
		Int("entries", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Pre-populated static bucket")

	return nil
}

func (m *Manager) fetchEntry(ctx context.Context, rawURL string) (*cache.CacheEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &ManifestError{URL: rawURL, Err: err}
	}

	resp, err := m.fetcher.Do(req)
	if err != nil {
		return nil, &ManifestError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ManifestError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		return nil, &ManifestError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	entry.URL = rawURL
	return entry, nil
}

// GCReport summarizes a garbage collection run.
type GCReport struct {
	Deleted  []string
	Retained []string
	Failed   map[string]error
}

// CollectGarbage deletes every bucket that is neither the current static
// nor the dynamic bucket. Deletions are independent: a failure is logged
// and recorded in the report, and the remaining buckets are still
// processed. Only failing to enumerate buckets is returned as an error.
func (m *Manager) CollectGarbage(ctx context.Context) (GCReport, error) {
	report := GCReport{Failed: make(map[string]error)}

	names, err := m.store.Buckets(ctx)
	if err != nil {
		return report, fmt.Errorf("list buckets: %w", err)
	}

	for _, name := range names {
		if m.config.Names.IsCurrent(name) {
			report.Retained = append(report.Retained, name)
			continue
		}

		if _, err := m.store.Delete(ctx, name); err != nil {
			bucketsDeletedTotal.WithLabelValues("failed").Inc()
			report.Failed[name] = err
			m.logger.Warn().Err(err).Str("bucket", name).Msg("Failed to delete stale bucket")
			continue
		}

		bucketsDeletedTotal.WithLabelValues("deleted").Inc()
		report.Deleted = append(report.Deleted, name)
		m.logger.Info().Str("bucket", name).Msg("Deleted stale bucket")
	}

	return report, nil
}
