package cache

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RequestKey identifies a cached response: the request method plus the
// absolute request URL.
type RequestKey struct {
	// Method is the HTTP method (only GET is ever stored)
	Method string

	// URL is the absolute request URL
	URL string
}

// NewRequestKey builds the key for an outgoing request.
func NewRequestKey(req *http.Request) RequestKey {
	return RequestKey{
		Method: req.Method,
		URL:    req.URL.String(),
	}
}

// GetKey builds a GET key for an absolute URL.
func GetKey(rawURL string) RequestKey {
	return RequestKey{Method: http.MethodGet, URL: rawURL}
}

// String generates a deterministic cache key string.
// Format: METHOD absolute-url
//
// The method is upper-cased and the URL fragment is dropped, since fragments
// never reach the network.
//
// Example:
//
//	GET https://app.example.com/index.html
func (k RequestKey) String() string {
	method := strings.ToUpper(k.Method)
	if method == "" {
		method = http.MethodGet
	}

	u := k.URL
	if parsed, err := url.Parse(k.URL); err == nil {
		parsed.Fragment = ""
		parsed.RawFragment = ""
		u = parsed.String()
	}

	return fmt.Sprintf("%s %s", method, u)
}

// ParseRequestKey is the inverse of RequestKey.String.
func ParseRequestKey(s string) (RequestKey, error) {
	method, rawURL, ok := strings.Cut(s, " ")
	if !ok || method == "" || rawURL == "" {
		return RequestKey{}, fmt.Errorf("malformed request key %q", s)
	}
	return RequestKey{Method: method, URL: rawURL}, nil
}
