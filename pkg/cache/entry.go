package cache

import (
	"net/http"
	"time"
)

// CacheEntry represents a stored response snapshot.
// Entries are immutable once written; a re-cache replaces the whole entry.
type CacheEntry struct {
	// URL is the absolute URL the response was fetched from
	URL string `json:"url"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Status is the status line text (e.g. "200 OK")
	Status string `json:"status"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// Data is the response body
	Data []byte `json:"data"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// OK reports whether the stored status is in the 2xx range.
func (e *CacheEntry) OK() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

// Age returns how long ago the entry was cached.
func (e *CacheEntry) Age() time.Duration {
	if e.CachedAt.IsZero() {
		return 0
	}
	return time.Since(e.CachedAt)
}
