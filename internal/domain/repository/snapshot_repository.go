package repository

import (
	"context"

	"flightwatch-service/internal/domain/entity"
)

// SnapshotRepository is the append-only flight snapshot history
type SnapshotRepository interface {
	Append(ctx context.Context, snapshot *entity.FlightSnapshot) error
	// LatestByTrip returns the most recently appended snapshot for a trip,
	// or nil when the trip has no history yet
	LatestByTrip(ctx context.Context, tripID string) (*entity.FlightSnapshot, error)
	// DeleteByTrip removes a trip's history as part of tenant-data cascade deletion
	DeleteByTrip(ctx context.Context, tripID string) error
}
