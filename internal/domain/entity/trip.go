// internal/domain/entity/trip.go
package entity

import (
	"time"
)

// TripStatus is the lifecycle status of a monitored trip
type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripBoarding  TripStatus = "boarding"
	TripDeparted  TripStatus = "departed"
	TripLanded    TripStatus = "landed"
	TripCancelled TripStatus = "cancelled"
)

// IsTerminal reports whether polling should stop for this status
func (s TripStatus) IsTerminal() bool {
	return s == TripLanded || s == TripCancelled
}

// Trip represents one monitored flight booking. The trip record itself is
// owned by the trip-management service; the engine reads it and writes back
// status, nextPollDue and provider-derived fields only.
type Trip struct {
	ID              string     `bson:"_id,omitempty"`
	TenantID        string     `bson:"tenantId"`
	Recipient       string     `bson:"recipient"` // phone number for the channel transport
	FlightNumber    string     `bson:"flightNumber"`
	DepartureUTC    time.Time  `bson:"departureUtc"` // converted from origin-local exactly once, at creation
	Origin          string     `bson:"origin"`
	Destination     string     `bson:"destination"`
	Status          TripStatus `bson:"status"`
	DepartureGate   string     `bson:"departureGate,omitempty"`
	EstDepartureUTC *time.Time `bson:"estDepartureUtc,omitempty"`
	ActDepartureUTC *time.Time `bson:"actDepartureUtc,omitempty"`
	EstArrivalUTC   *time.Time `bson:"estArrivalUtc,omitempty"`
	ActArrivalUTC   *time.Time `bson:"actArrivalUtc,omitempty"`
	NextPollDue     *time.Time `bson:"nextPollDue,omitempty"`
	CreatedAt       time.Time  `bson:"createdAt"`
	UpdatedAt       time.Time  `bson:"updatedAt"`
}
