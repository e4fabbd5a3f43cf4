package repository

import (
	"context"
	"time"

	"flightwatch-service/internal/domain/entity"
)

// TripPollUpdate carries the provider-derived fields the engine is allowed
// to write back onto a trip after a poll.
type TripPollUpdate struct {
	Status          entity.TripStatus
	DepartureGate   string
	EstDepartureUTC *time.Time
	ActDepartureUTC *time.Time
	EstArrivalUTC   *time.Time
	ActArrivalUTC   *time.Time
	NextPollDue     *time.Time // nil stops polling (terminal)
}

// TripRepository defines the engine's read/write-back access to trips
type TripRepository interface {
	// FindDue returns non-terminal trips whose nextPollDue is at or before now
	FindDue(ctx context.Context, now time.Time, limit int) ([]*entity.Trip, error)
	// FindApproachingDeparture returns non-terminal trips departing within [from, to)
	FindApproachingDeparture(ctx context.Context, from, to time.Time) ([]*entity.Trip, error)
	UpdateAfterPoll(ctx context.Context, tripID string, update TripPollUpdate) error
}
