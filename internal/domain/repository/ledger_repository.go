package repository

import (
	"context"
	"time"

	"flightwatch-service/internal/domain/entity"
)

// LedgerRepository is the durable idempotency ledger. The storage layer
// enforces a unique constraint on (tripId, eventKind, fingerprint); that
// constraint, not any in-memory state, is the at-most-once authority.
type LedgerRepository interface {
	// TryReserve inserts a pending record for the event. It returns false
	// when a record with the same (trip, kind, fingerprint) already exists,
	// in which case the caller must skip sending entirely.
	TryReserve(ctx context.Context, record *entity.NotificationRecord) (bool, error)
	// ClaimDue atomically claims up to limit pending records whose
	// nextAttemptAt is due, pushing nextAttemptAt forward by lease so
	// concurrent sweepers cannot double-claim
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*entity.NotificationRecord, error)
	MarkSent(ctx context.Context, id string, messageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
	// Reschedule records a consumed attempt and the next due time
	Reschedule(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error
	// Defer moves nextAttemptAt without consuming an attempt (quiet hours, rate caps)
	Defer(ctx context.Context, id string, nextAttemptAt time.Time, reason string) error
	// CountSentSince counts sent records for a tenant since the given instant
	CountSentSince(ctx context.Context, tenantID string, since time.Time) (int64, error)
	// FailPendingNonTerminal marks a trip's pending non-terminal records
	// failed when a terminal event supersedes them
	FailPendingNonTerminal(ctx context.Context, tripID string, reason string) error
}
