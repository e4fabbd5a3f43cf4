package repository

import (
	"context"
	"time"

	"flightwatch-service/internal/domain/entity"
	"flightwatch-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTripRepository implements TripRepository
type MongoTripRepository struct {
	collection *mongo.Collection
}

// NewMongoTripRepository creates a new trip repository
func NewMongoTripRepository(db *mongo.Database) repository.TripRepository {
	collection := db.Collection("trips")

	// Index for the "due now" query each tick
	ctx := context.Background()
	dueIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextPollDue", Value: 1}},
	}
	collection.Indexes().CreateOne(ctx, dueIndex)

	tenantIndex := mongo.IndexModel{
		Keys: bson.M{"tenantId": 1},
	}
	collection.Indexes().CreateOne(ctx, tenantIndex)

	return &MongoTripRepository{
		collection: collection,
	}
}

var activeStatuses = []entity.TripStatus{entity.TripScheduled, entity.TripBoarding, entity.TripDeparted}

// FindDue finds active trips whose next poll is at or before now. Trips
// whose due time is long past (scheduler downtime) match too and are polled
// immediately.
func (r *MongoTripRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*entity.Trip, error) {
	filter := bson.M{
		"status":      bson.M{"$in": activeStatuses},
		"nextPollDue": bson.M{"$lte": now},
	}

	opts := options.Find().
		SetSort(bson.M{"nextPollDue": 1}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var trips []*entity.Trip
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// FindApproachingDeparture finds active trips departing within [from, to)
func (r *MongoTripRepository) FindApproachingDeparture(ctx context.Context, from, to time.Time) ([]*entity.Trip, error) {
	filter := bson.M{
		"status":       bson.M{"$in": activeStatuses},
		"departureUtc": bson.M{"$gte": from, "$lt": to},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var trips []*entity.Trip
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

// UpdateAfterPoll writes back status, nextPollDue and provider-derived fields
func (r *MongoTripRepository) UpdateAfterPoll(ctx context.Context, tripID string, update repository.TripPollUpdate) error {
	set := bson.M{
		"status":    update.Status,
		"updatedAt": time.Now(),
	}
	unset := bson.M{}

	if update.DepartureGate != "" {
		set["departureGate"] = update.DepartureGate
	}
	if update.EstDepartureUTC != nil {
		set["estDepartureUtc"] = update.EstDepartureUTC
	}
	if update.ActDepartureUTC != nil {
		set["actDepartureUtc"] = update.ActDepartureUTC
	}
	if update.EstArrivalUTC != nil {
		set["estArrivalUtc"] = update.EstArrivalUTC
	}
	if update.ActArrivalUTC != nil {
		set["actArrivalUtc"] = update.ActArrivalUTC
	}

	if update.NextPollDue != nil {
		set["nextPollDue"] = update.NextPollDue
	} else {
		// Terminal trip, stop polling
		unset["nextPollDue"] = ""
	}

	doc := bson.M{"$set": set}
	if len(unset) > 0 {
		doc["$unset"] = unset
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": tripID}, doc)
	return err
}
