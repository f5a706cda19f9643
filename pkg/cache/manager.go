package cache

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Manager wraps a Store backend with metrics and debug logging.
// It implements Store itself, so it can be handed to any consumer of one.
type Manager struct {
	backend Store
	logger  zerolog.Logger
}

// NewManager creates a cache manager over backend.
func NewManager(backend Store) *Manager {
	if backend == nil {
		panic("cache backend cannot be nil")
	}
	return &Manager{
		backend: backend,
		logger:  log.With().Str("component", "cache").Logger(),
	}
}

// WithLogger returns a copy of the manager logging to logger.
func (m *Manager) WithLogger(logger zerolog.Logger) *Manager {
	return &Manager{backend: m.backend, logger: logger}
}

// Backend returns the wrapped store.
func (m *Manager) Backend() Store {
	return m.backend
}

func (m *Manager) Open(ctx context.Context, bucket string) error {
	if err := m.backend.Open(ctx, bucket); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return err
	}
	return nil
}

func (m *Manager) Put(ctx context.Context, bucket string, key RequestKey, entry *CacheEntry) error {
	if err := m.backend.Put(ctx, bucket, key, entry); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return err
	}
	EntryBytes.Observe(float64(len(entry.Data)))
	m.logger.Debug().
		Str("bucket", bucket).
		Str("key", key.String()).
		Int("status", entry.StatusCode).
		Msg("Cached response")
	return nil
}

func (m *Manager) Get(ctx context.Context, bucket string, key RequestKey) (*CacheEntry, bool, error) {
	entry, ok, err := m.backend.Get(ctx, bucket, key)
	m.record("get", "bucket", key, ok, err)
	return entry, ok, err
}

func (m *Manager) Match(ctx context.Context, key RequestKey) (*CacheEntry, bool, error) {
	entry, ok, err := m.backend.Match(ctx, key)
	m.record("match", "all", key, ok, err)
	return entry, ok, err
}

func (m *Manager) record(operation, scope string, key RequestKey, ok bool, err error) {
	switch {
	case err != nil:
		CacheErrors.WithLabelValues(operation).Inc()
	case ok:
		CacheHits.WithLabelValues(scope).Inc()
		m.logger.Debug().Str("key", key.String()).Bool("cache_hit", true).Msg("Cache lookup")
	default:
		CacheMisses.Inc()
		m.logger.Debug().Str("key", key.String()).Bool("cache_hit", false).Msg("Cache lookup")
	}
}

func (m *Manager) Keys(ctx context.Context, bucket string) ([]string, error) {
	keys, err := m.backend.Keys(ctx, bucket)
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
	}
	return keys, err
}

func (m *Manager) Buckets(ctx context.Context) ([]string, error) {
	names, err := m.backend.Buckets(ctx)
	if err != nil {
		CacheErrors.WithLabelValues("buckets").Inc()
	}
	return names, err
}

func (m *Manager) Delete(ctx context.Context, bucket string) (bool, error) {
	existed, err := m.backend.Delete(ctx, bucket)
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, err
	}
	m.logger.Debug().Str("bucket", bucket).Bool("existed", existed).Msg("Deleted bucket")
	return existed, nil
}

func (m *Manager) Close() error {
	return m.backend.Close()
}
