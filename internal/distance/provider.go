// Package distance retrieves road distance matrices for address lists.
package distance

import (
	"context"
	"errors"
	"fmt"
)

// Provider returns the n×n distance matrix, in kilometres, between
// addresses. Row and column i correspond to addresses[i].
type Provider interface {
	GetMatrix(ctx context.Context, addresses []string) ([][]float64, error)
}

// ProviderError reports a failed matrix lookup.
type ProviderError struct {
	Provider string
	Reason   string
	// StatusCode is the HTTP status of the upstream call, 0 if none.
	StatusCode int
	Err        error
	retryable  bool
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s distance lookup failed: %s", e.Provider, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the same request may succeed.
func (e *ProviderError) Retryable() bool { return e.retryable }

// IsProviderError reports whether err is, or wraps, a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
