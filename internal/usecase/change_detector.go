package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"flightwatch-service/internal/domain/entity"
	"flightwatch-service/internal/domain/repository"
	"flightwatch-service/pkg/logger"
)

// Template ids registered with the channel transport
const (
	TemplateReservationConfirmed = "flight_reservation_confirmed"
	TemplateReminder24h          = "flight_reminder_24h"
	TemplateDelayed              = "flight_delayed"
	TemplateGateChanged          = "flight_gate_changed"
	TemplateCancelled            = "flight_cancelled"
	TemplateBoarding             = "flight_boarding"
	TemplateLanded               = "flight_landed"
)

// delayThreshold is the materiality threshold for departure-time shifts
const delayThreshold = 5 * time.Minute

// fingerprintBucket is the rounding granularity for time values inside
// fingerprints, so a refetched estimate a few seconds apart never re-fires
const fingerprintBucket = 5 * time.Minute

// ChangeDetector compares the newest snapshot to the previously stored one
// and classifies the delta into notification-worthy events
type ChangeDetector struct {
	airlineRepo repository.AirlineRepository
	logger      logger.Logger
}

// NewChangeDetector creates a new change detector
func NewChangeDetector(airlineRepo repository.AirlineRepository, logger logger.Logger) *ChangeDetector {
	return &ChangeDetector{
		airlineRepo: airlineRepo,
		logger:      logger,
	}
}

// NormalizeStatus maps a raw provider status string onto the trip lifecycle
func NormalizeStatus(raw string) entity.TripStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cancelled", "canceled":
		return entity.TripCancelled
	case "landed", "arrived":
		return entity.TripLanded
	case "active", "departed", "en-route", "in-air":
		return entity.TripDeparted
	case "boarding", "gate closing":
		return entity.TripBoarding
	default:
		return entity.TripScheduled
	}
}

// EffectiveStatus derives the trip status from a snapshot. A populated
// actual arrival time means landed regardless of the status string.
func EffectiveStatus(snapshot *entity.FlightSnapshot) entity.TripStatus {
	status := NormalizeStatus(snapshot.Status)
	if status != entity.TripCancelled && snapshot.ActArrival != nil {
		return entity.TripLanded
	}
	return status
}

// Detect produces zero or more events from the delta between prev and curr.
// The first-ever snapshot is baseline only. Rules are evaluated
// independently; a single poll may yield several events.
func (d *ChangeDetector) Detect(ctx context.Context, trip *entity.Trip, prev, curr *entity.FlightSnapshot) []entity.NotificationEvent {
	if prev == nil {
		d.logger.Debug("First snapshot, baseline only", "tripID", trip.ID)
		return nil
	}

	var events []entity.NotificationEvent

	prevStatus := EffectiveStatus(prev)
	currStatus := EffectiveStatus(curr)

	if currStatus == entity.TripCancelled && prevStatus != entity.TripCancelled {
		events = append(events, d.newEvent(ctx, trip, entity.EventCancelled, TemplateCancelled, "cancelled", nil))
	}

	if curr.DepartureGate != "" && curr.DepartureGate != prev.DepartureGate {
		vars := map[string]string{"gate": curr.DepartureGate}
		if curr.DepartureTerminal != "" {
			vars["terminal"] = curr.DepartureTerminal
		}
		events = append(events, d.newEvent(ctx, trip, entity.EventGateChanged, TemplateGateChanged, curr.DepartureGate, vars))
	}

	if ev, ok := d.detectDelay(ctx, trip, prev, curr, currStatus); ok {
		events = append(events, ev)
	}

	if currStatus == entity.TripBoarding && prevStatus != entity.TripBoarding {
		events = append(events, d.newEvent(ctx, trip, entity.EventBoarding, TemplateBoarding, "boarding", nil))
	}

	if currStatus == entity.TripLanded && prevStatus != entity.TripLanded {
		vars := map[string]string{}
		if curr.ActArrival != nil {
			vars["arrived_at"] = curr.ActArrival.UTC().Format("2006-01-02 15:04")
		}
		events = append(events, d.newEvent(ctx, trip, entity.EventLanded, TemplateLanded, "landed", vars))
	}

	return events
}

// detectDelay fires when the estimated departure shifts materially later
// than the previous estimate (or the scheduled time on first estimate),
// while the flight is still on the ground
func (d *ChangeDetector) detectDelay(ctx context.Context, trip *entity.Trip, prev, curr *entity.FlightSnapshot, currStatus entity.TripStatus) (entity.NotificationEvent, bool) {
	if curr.EstDeparture == nil {
		return entity.NotificationEvent{}, false
	}
	if currStatus != entity.TripScheduled && currStatus != entity.TripBoarding {
		return entity.NotificationEvent{}, false
	}

	baseline := trip.DepartureUTC
	if prev.EstDeparture != nil {
		baseline = *prev.EstDeparture
	}
	if curr.EstDeparture.Sub(baseline) <= delayThreshold {
		return entity.NotificationEvent{}, false
	}

	delayMinutes := int(curr.EstDeparture.Sub(trip.DepartureUTC).Round(time.Minute).Minutes())
	vars := map[string]string{
		"delay_minutes": strconv.Itoa(delayMinutes),
		"new_departure": curr.EstDeparture.UTC().Format("2006-01-02 15:04"),
	}
	// Bucket the new estimate so refetches of the same value never re-fire,
	// while a further slip produces a fresh fingerprint
	value := curr.EstDeparture.UTC().Truncate(fingerprintBucket).Format(time.RFC3339)
	return d.newEvent(ctx, trip, entity.EventDelayed, TemplateDelayed, value, vars), true
}

// ReminderEvent builds the 24-hour pre-departure reminder. Its fingerprint
// is constant per trip, so the reminder fires at most once ever.
func (d *ChangeDetector) ReminderEvent(ctx context.Context, trip *entity.Trip) entity.NotificationEvent {
	vars := map[string]string{
		"departure": trip.DepartureUTC.Format("2006-01-02 15:04"),
	}
	return d.newEvent(ctx, trip, entity.EventReminder24h, TemplateReminder24h, "24h", vars)
}

// ReservationConfirmedEvent builds the confirmation sent at trip creation
// by the trip-management collaborator, never by polling
func (d *ChangeDetector) ReservationConfirmedEvent(ctx context.Context, trip *entity.Trip) entity.NotificationEvent {
	return d.newEvent(ctx, trip, entity.EventReservationConfirmed, TemplateReservationConfirmed, "confirmed", nil)
}

func (d *ChangeDetector) newEvent(ctx context.Context, trip *entity.Trip, kind entity.EventKind, templateID, value string, extra map[string]string) entity.NotificationEvent {
	vars := map[string]string{
		"flight":      trip.FlightNumber,
		"origin":      trip.Origin,
		"destination": trip.Destination,
	}
	if name := d.airlineName(ctx, trip.FlightNumber); name != "" {
		vars["airline"] = name
	}
	for k, v := range extra {
		vars[k] = v
	}

	return entity.NotificationEvent{
		TripID:      trip.ID,
		TenantID:    trip.TenantID,
		Kind:        kind,
		Recipient:   trip.Recipient,
		Origin:      trip.Origin,
		TemplateID:  templateID,
		Variables:   vars,
		Fingerprint: Fingerprint(trip.ID, kind, value),
	}
}

// airlineName resolves the carrier display name from the flight number
// prefix. Lookup failures only cost the template variable.
func (d *ChangeDetector) airlineName(ctx context.Context, flightNumber string) string {
	prefix := strings.ReplaceAll(flightNumber, "/", "")
	if len(prefix) < 2 {
		return ""
	}
	airline, err := d.airlineRepo.GetByCode(ctx, prefix[:2])
	if err != nil {
		d.logger.Debug("Airline lookup failed", "code", prefix[:2], "error", err)
		return ""
	}
	return airline.Name
}

// Fingerprint derives the deterministic dedup hash for one event instance.
// It incorporates the specific new value, so successive distinct changes of
// the same kind (gate B12 -> B14 -> B9) each fire exactly once.
func Fingerprint(tripID string, kind entity.EventKind, value string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", tripID, kind, value)))
	return hex.EncodeToString(sum[:])
}
