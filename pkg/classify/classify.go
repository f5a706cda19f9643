// Package classify assigns every outgoing request to exactly one routing
// class. Classification is a pure function of method, URL and navigation flag.
package classify

import (
	"context"
	"net/http"
	"strings"
)

// Class is the routing class of a request.
type Class int

const (
	// Bypass requests are not handled by the offline cache at all.
	Bypass Class = iota

	// RemoteAsset requests target public objects on the remote object store.
	RemoteAsset

	// Navigation requests are top-level document loads.
	Navigation

	// Generic covers every other GET request.
	Generic
)

// String returns the metric/log label of the class.
func (c Class) String() string {
	switch c {
	case Bypass:
		return "bypass"
	case RemoteAsset:
		return "remote_asset"
	case Navigation:
		return "navigation"
	case Generic:
		return "generic"
	default:
		return "unknown"
	}
}

// Default remote object store matching rule.
const (
	DefaultHostFragment = "supabase.co"
	DefaultPathSegment  = "/storage/v1/object/public/"
)

// RemoteAssetRule matches requests for public objects on the remote
// object store: the host must contain HostFragment and the path must
// contain PathSegment.
type RemoteAssetRule struct {
	HostFragment string
	PathSegment  string
}

// DefaultRemoteAssetRule returns the rule for the default storage provider.
func DefaultRemoteAssetRule() RemoteAssetRule {
	return RemoteAssetRule{
		HostFragment: DefaultHostFragment,
		PathSegment:  DefaultPathSegment,
	}
}

// Matches reports whether req targets a public remote object.
// An empty fragment or segment never matches.
func (r RemoteAssetRule) Matches(req *http.Request) bool {
	if r.HostFragment == "" || r.PathSegment == "" || req.URL == nil {
		return false
	}
	return strings.Contains(req.URL.Hostname(), r.HostFragment) &&
		strings.Contains(req.URL.Path, r.PathSegment)
}

// Classifier classifies requests.
type Classifier struct {
	rule RemoteAssetRule
}

// New creates a classifier for rule.
func New(rule RemoteAssetRule) *Classifier {
	return &Classifier{rule: rule}
}

// Rule returns the remote asset rule.
func (c *Classifier) Rule() RemoteAssetRule {
	return c.rule
}

// Classify assigns req to a class. The checks run in priority order:
// non-GET, remote asset, navigation, generic. A navigation to the asset
// host is still a RemoteAsset.
func (c *Classifier) Classify(req *http.Request) Class {
	if req.Method != http.MethodGet && req.Method != "" {
		return Bypass
	}
	if c.rule.Matches(req) {
		return RemoteAsset
	}
	if IsNavigation(req) {
		return Navigation
	}
	return Generic
}

type navigationKey struct{}

// WithNavigation marks requests created with the returned context as
// top-level navigations.
func WithNavigation(ctx context.Context) context.Context {
	return context.WithValue(ctx, navigationKey{}, true)
}

// IsNavigation reports whether req is a top-level document load: either
// marked via WithNavigation or carrying the browser's
// "Sec-Fetch-Mode: navigate" header.
func IsNavigation(req *http.Request) bool {
	if nav, ok := req.Context().Value(navigationKey{}).(bool); ok && nav {
		return true
	}
	return strings.EqualFold(req.Header.Get("Sec-Fetch-Mode"), "navigate")
}
