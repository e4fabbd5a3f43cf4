// internal/domain/entity/errors.go
package entity

import (
	"errors"
	"fmt"
)

// ProviderError is a transient flight-status fetch failure. The trip stays
// active and is retried at the next regular poll tick.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider fetch failed (status %d): %s", e.StatusCode, e.Message)
}

// TransportError is a channel send failure. Retryable errors consume a retry
// attempt with backoff; permanent errors short-circuit to failed.
type TransportError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsRetryableTransport reports whether err is a transport error worth
// another attempt. Unknown error types (network failures wrapped upstream)
// count as retryable.
func IsRetryableTransport(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return true
}
