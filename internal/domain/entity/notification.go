// internal/domain/entity/notification.go
package entity

import (
	"time"
)

// EventKind classifies a detected, notification-worthy change
type EventKind string

const (
	EventReservationConfirmed EventKind = "reservation_confirmed"
	EventReminder24h          EventKind = "reminder_24h"
	EventDelayed              EventKind = "delayed"
	EventGateChanged          EventKind = "gate_changed"
	EventCancelled            EventKind = "cancelled"
	EventBoarding             EventKind = "boarding"
	EventLanded               EventKind = "landed"
)

// IsTerminal reports whether the event ends monitoring for the trip
func (k EventKind) IsTerminal() bool {
	return k == EventCancelled || k == EventLanded
}

// Urgent events may bypass quiet hours. Reminders never do.
func (k EventKind) Urgent() bool {
	return k == EventCancelled || k == EventLanded
}

// NotificationEvent is a detected change produced by the change detector.
// It is transient; the ledger record it reserves is the durable trace.
type NotificationEvent struct {
	TripID      string
	TenantID    string
	Kind        EventKind
	Recipient   string
	Origin      string // origin airport code, resolves the quiet-hours timezone
	TemplateID  string
	Variables   map[string]string
	Fingerprint string // sha256 over trip id, kind and the specific changed value
}

// DeliveryStatus is the state of a ledger record
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// NotificationRecord is one idempotency ledger entry. For a given
// (tripId, eventKind, fingerprint) at most one record exists, enforced by a
// unique index at the storage layer; at most one may reach DeliverySent.
// Records are updated in place across retries and never deleted.
type NotificationRecord struct {
	ID            string            `bson:"_id,omitempty"`
	TripID        string            `bson:"tripId"`
	TenantID      string            `bson:"tenantId"`
	EventKind     EventKind         `bson:"eventKind"`
	Fingerprint   string            `bson:"fingerprint"`
	Recipient     string            `bson:"recipient"`
	Origin        string            `bson:"origin,omitempty"`
	TemplateID    string            `bson:"templateId"`
	Variables     map[string]string `bson:"variables,omitempty"`
	Status        DeliveryStatus    `bson:"status"`
	Attempts      int               `bson:"attempts"`
	NextAttemptAt time.Time         `bson:"nextAttemptAt"`
	LastError     string            `bson:"lastError,omitempty"`
	SentAt        *time.Time        `bson:"sentAt,omitempty"`
	MessageID     string            `bson:"messageId,omitempty"`
	CreatedAt     time.Time         `bson:"createdAt"`
	UpdatedAt     time.Time         `bson:"updatedAt"`
}
