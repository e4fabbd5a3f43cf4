package repository

import (
	"context"
	"errors"
	"time"

	"flightwatch-service/internal/domain/entity"
	"flightwatch-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLedgerRepository implements LedgerRepository. The unique compound
// index on (tripId, eventKind, fingerprint) is the at-most-once authority;
// it survives restarts and horizontal scaling where in-memory state cannot.
type MongoLedgerRepository struct {
	collection *mongo.Collection
}

// NewMongoLedgerRepository creates a new idempotency ledger repository
func NewMongoLedgerRepository(db *mongo.Database) repository.LedgerRepository {
	collection := db.Collection("notification_ledger")

	ctx := context.Background()
	uniqueIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "tripId", Value: 1},
			{Key: "eventKind", Value: 1},
			{Key: "fingerprint", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	collection.Indexes().CreateOne(ctx, uniqueIndex)

	// Index for the due-record sweep
	dueIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextAttemptAt", Value: 1}},
	}
	collection.Indexes().CreateOne(ctx, dueIndex)

	// Index for tenant rate-cap counting
	sentIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "sentAt", Value: -1}},
	}
	collection.Indexes().CreateOne(ctx, sentIndex)

	return &MongoLedgerRepository{
		collection: collection,
	}
}

// TryReserve inserts a pending record for the event. A duplicate-key error
// means the event was already reserved or sent; the caller must skip.
func (r *MongoLedgerRepository) TryReserve(ctx context.Context, record *entity.NotificationRecord) (bool, error) {
	now := time.Now()
	if record.ID == "" {
		record.ID = primitive.NewObjectID().Hex()
	}
	record.Status = entity.DeliveryPending
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClaimDue claims up to limit due pending records, pushing nextAttemptAt
// forward by lease so a concurrent sweeper cannot pick up the same record
func (r *MongoLedgerRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*entity.NotificationRecord, error) {
	filter := bson.M{
		"status":        entity.DeliveryPending,
		"nextAttemptAt": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{
		"nextAttemptAt": now.Add(lease),
		"updatedAt":     now,
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.M{"nextAttemptAt": 1}).
		SetReturnDocument(options.Before)

	var claimed []*entity.NotificationRecord
	for len(claimed) < limit {
		var record entity.NotificationRecord
		err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, &record)
	}
	return claimed, nil
}

// MarkSent finalizes a record as delivered
func (r *MongoLedgerRepository) MarkSent(ctx context.Context, id string, messageID string, sentAt time.Time) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":    entity.DeliverySent,
			"messageId": messageID,
			"sentAt":    sentAt,
			"lastError": "",
			"updatedAt": time.Now(),
		}},
	)
	return err
}

// MarkFailed finalizes a record as permanently failed. The record stays for
// operator follow-up; it is never retried automatically.
func (r *MongoLedgerRepository) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":    entity.DeliveryFailed,
			"attempts":  attempts,
			"lastError": lastError,
			"updatedAt": time.Now(),
		}},
	)
	return err
}

// Reschedule records a consumed attempt and the next due time
func (r *MongoLedgerRepository) Reschedule(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"attempts":      attempts,
			"nextAttemptAt": nextAttemptAt,
			"lastError":     lastError,
			"updatedAt":     time.Now(),
		}},
	)
	return err
}

// Defer moves nextAttemptAt without consuming an attempt
func (r *MongoLedgerRepository) Defer(ctx context.Context, id string, nextAttemptAt time.Time, reason string) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"nextAttemptAt": nextAttemptAt,
			"lastError":     reason,
			"updatedAt":     time.Now(),
		}},
	)
	return err
}

// CountSentSince counts sent records for a tenant since the given instant
func (r *MongoLedgerRepository) CountSentSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"tenantId": tenantID,
		"status":   entity.DeliverySent,
		"sentAt":   bson.M{"$gte": since},
	})
}

// FailPendingNonTerminal marks a trip's pending non-terminal records failed
// when a later terminal event supersedes them
func (r *MongoLedgerRepository) FailPendingNonTerminal(ctx context.Context, tripID string, reason string) error {
	_, err := r.collection.UpdateMany(
		ctx,
		bson.M{
			"tripId": tripID,
			"status": entity.DeliveryPending,
			"eventKind": bson.M{"$nin": []entity.EventKind{
				entity.EventCancelled, entity.EventLanded,
			}},
		},
		bson.M{"$set": bson.M{
			"status":    entity.DeliveryFailed,
			"lastError": reason,
			"updatedAt": time.Now(),
		}},
	)
	return err
}
