package repository

import (
	"context"
)

// MessengerRepository is the narrow contract to the outbound channel
// transport. Failures surface as *entity.TransportError, classified
// retryable or permanent.
type MessengerRepository interface {
	// SendTemplate delivers a templated message and returns the channel
	// message id on success
	SendTemplate(ctx context.Context, recipient, templateID string, variables map[string]string) (string, error)
}
