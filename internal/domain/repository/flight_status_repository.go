package repository

import (
	"context"
	"time"

	"flightwatch-service/internal/domain/entity"
)

// FlightStatusRepository is the narrow contract to the flight-status
// provider. Failures surface as *entity.ProviderError and are retried at
// the next poll tick, never inline.
type FlightStatusRepository interface {
	FetchStatus(ctx context.Context, flightNumber string, dateFrom, dateTo time.Time) (*entity.FlightSnapshot, error)
}
