package docstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores records in a single MongoDB collection.
type MongoRepository[T any, PT RecordPtr[T]] struct {
	coll *mongo.Collection
}

func NewMongoRepository[T any, PT RecordPtr[T]](coll *mongo.Collection) *MongoRepository[T, PT] {
	return &MongoRepository[T, PT]{coll: coll}
}

func (r *MongoRepository[T, PT]) Save(ctx context.Context, record PT) (PT, error) {
	if record.GetID() == "" {
		record.SetID(uuid.New().String())
		if _, err := r.coll.InsertOne(ctx, record); err != nil {
			record.SetID("")
			return nil, classify("insert", err)
		}
		return record, nil
	}

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": record.GetID()}, record)
	if err != nil {
		return nil, classify("replace", err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return record, nil
}

func (r *MongoRepository[T, PT]) FindByID(ctx context.Context, id string) (PT, error) {
	var value T
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&value); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, classify("find by id", err)
	}
	return PT(&value), nil
}

// FindByTenant never returns soft deleted records. A null or missing
// audit.deletedAt both match the nil filter.
func (r *MongoRepository[T, PT]) FindByTenant(ctx context.Context, query TenantQuery) ([]PT, error) {
	if err := query.validate(); err != nil {
		return nil, err
	}

	direction := 1
	if query.Descending {
		direction = -1
	}

	filter := bson.M{
		"tenant.orgId":    query.OrgID,
		"tenant.userId":   query.UserID,
		"audit.deletedAt": nil,
	}
	opts := options.Find().SetSort(bson.D{
		{Key: query.sortKey(), Value: direction},
		{Key: "_id", Value: direction},
	})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify("find by tenant", err)
	}
	defer cursor.Close(ctx)

	records := make([]PT, 0)
	for cursor.Next(ctx) {
		var value T
		if err := cursor.Decode(&value); err != nil {
			return nil, classify("decode", err)
		}
		records = append(records, PT(&value))
	}
	if err := cursor.Err(); err != nil {
		return nil, classify("iterate", err)
	}
	return records, nil
}
