package generation

import (
	"fmt"
)

// ManifestError reports a manifest entry that could not be pre-cached.
// Either Err is set (transport failure) or StatusCode is a non-2xx status.
type ManifestError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *ManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pre-cache %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("pre-cache %s: unexpected status %d", e.URL, e.StatusCode)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ManifestError) Unwrap() error {
	return e.Err
}
