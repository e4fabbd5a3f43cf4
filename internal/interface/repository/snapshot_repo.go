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

// MongoSnapshotRepository implements SnapshotRepository
type MongoSnapshotRepository struct {
	collection *mongo.Collection
}

// NewMongoSnapshotRepository creates a new snapshot history repository
func NewMongoSnapshotRepository(db *mongo.Database) repository.SnapshotRepository {
	collection := db.Collection("flight_snapshots")

	// Index for latest-by-trip lookups
	ctx := context.Background()
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "tripId", Value: 1}, {Key: "recordedAt", Value: -1}},
	}
	collection.Indexes().CreateOne(ctx, indexModel)

	return &MongoSnapshotRepository{
		collection: collection,
	}
}

// Append inserts a snapshot. Snapshots are never updated afterwards.
func (r *MongoSnapshotRepository) Append(ctx context.Context, snapshot *entity.FlightSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = primitive.NewObjectID().Hex()
	}
	if snapshot.RecordedAt.IsZero() {
		snapshot.RecordedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, snapshot)
	return err
}

// LatestByTrip returns the most recently appended snapshot for a trip, or
// nil when the trip has no history yet
func (r *MongoSnapshotRepository) LatestByTrip(ctx context.Context, tripID string) (*entity.FlightSnapshot, error) {
	opts := options.FindOne().SetSort(bson.M{"recordedAt": -1})

	var snapshot entity.FlightSnapshot
	err := r.collection.FindOne(ctx, bson.M{"tripId": tripID}, opts).Decode(&snapshot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// DeleteByTrip removes a trip's history as part of tenant-data cascade deletion
func (r *MongoSnapshotRepository) DeleteByTrip(ctx context.Context, tripID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"tripId": tripID})
	return err
}
