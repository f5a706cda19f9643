// Package generation owns the cache generations of one deployed version:
// the bucket names considered current, install-time pre-population of the
// static bucket from the manifest, and activation-time garbage collection
// of every other bucket.
package generation

import (
	"fmt"
)

// Names are the two current bucket names of a generation.
type Names struct {
	// Static embeds the version tag and changes with every deployment
	Static string

	// Dynamic is stable across versions
	Dynamic string
}

// NewNames derives the static bucket name "<prefix>-<version>".
func NewNames(prefix, version, dynamic string) (Names, error) {
	if version == "" {
		return Names{}, fmt.Errorf("version cannot be empty")
	}
	if dynamic == "" {
		return Names{}, fmt.Errorf("dynamic bucket name cannot be empty")
	}

	static := version
	if prefix != "" {
		static = prefix + "-" + version
	}
	if static == dynamic {
		return Names{}, fmt.Errorf("static and dynamic bucket names must differ (both %q)", static)
	}

	return Names{Static: static, Dynamic: dynamic}, nil
}

// IsCurrent reports whether bucket belongs to this generation.
func (n Names) IsCurrent(bucket string) bool {
	return bucket == n.Static || bucket == n.Dynamic
}
