// internal/domain/entity/snapshot.go
package entity

import (
	"time"
)

// FlightSnapshot is one provider response, timestamped at fetch time.
// Snapshots are append-only: never updated or deleted except by tenant-data
// cascade when a trip is removed.
type FlightSnapshot struct {
	ID                string     `bson:"_id,omitempty"`
	TripID            string     `bson:"tripId"`
	FlightNumber      string     `bson:"flightNumber"`
	FlightDate        string     `bson:"flightDate"` // YYYY-MM-DD as reported by the provider
	Status            string     `bson:"status"`     // raw provider status string
	DepartureGate     string     `bson:"departureGate,omitempty"`
	DepartureTerminal string     `bson:"departureTerminal,omitempty"`
	ArrivalGate       string     `bson:"arrivalGate,omitempty"`
	ArrivalTerminal   string     `bson:"arrivalTerminal,omitempty"`
	EstDeparture      *time.Time `bson:"estDeparture,omitempty"`
	ActDeparture      *time.Time `bson:"actDeparture,omitempty"`
	EstArrival        *time.Time `bson:"estArrival,omitempty"`
	ActArrival        *time.Time `bson:"actArrival,omitempty"`
	RawPayload        []byte     `bson:"rawPayload,omitempty"` // opaque provider body, kept for audits
	Source            string     `bson:"source"`
	RecordedAt        time.Time  `bson:"recordedAt"`
}
