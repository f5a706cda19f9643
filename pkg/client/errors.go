package client

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of network failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents connection-level failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents deadline expiry (client timeout or
	// context deadline).
	ErrorClassTimeout ErrorClass = "timeout"
)

// NetworkError is returned when the transport produced no response at all.
type NetworkError struct {
	URL   string
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error fetching %s: %v", e.Class, e.URL, e.Err)
	}
	return fmt.Sprintf("%s error fetching %s", e.Class, e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is (or wraps) a *NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
