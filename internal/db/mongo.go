package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SortSpec describes a sort order for FindAllSorted: field name plus
// direction.
type SortSpec struct {
	Field string
	Desc  bool
}

// Repository provides generic CRUD operations over a single collection.
type Repository[T any] struct {
	collection *mongo.Collection
}

// NewRepository creates a repository bound to a collection.
func NewRepository[T any](db *mongo.Database, collectionName string) *Repository[T] {
	return &Repository[T]{
		collection: db.Collection(collectionName),
	}
}

func OpenConnection(uri string, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	if err = client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return client.Database(database), nil
}

// Create inserts a new document.
func (r *Repository[T]) Create(ctx context.Context, document T) (*mongo.InsertOneResult, error) {
	return r.collection.InsertOne(ctx, document)
}

// FindOne finds a single document matching the filter.
func (r *Repository[T]) FindOne(ctx context.Context, filter bson.M) (*T, error) {
	var result T
	if err := r.collection.FindOne(ctx, filter).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FindAllSorted finds all documents matching the filter in the given order.
func (r *Repository[T]) FindAllSorted(ctx context.Context, filter bson.M, sorts ...SortSpec) ([]T, error) {
	findOptions := options.Find()
	if len(sorts) > 0 {
		order := bson.D{}
		for _, s := range sorts {
			dir := 1
			if s.Desc {
				dir = -1
			}
			order = append(order, bson.E{Key: s.Field, Value: dir})
		}
		findOptions.SetSort(order)
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []T
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateOne applies a $set update to a single document.
func (r *Repository[T]) UpdateOne(ctx context.Context, filter bson.M, set bson.M) (*mongo.UpdateResult, error) {
	return r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
}

// UpdateOneRaw applies an arbitrary update document, for updates that mix
// $set with $inc or other operators.
func (r *Repository[T]) UpdateOneRaw(ctx context.Context, filter bson.M, update bson.M) (*mongo.UpdateResult, error) {
	return r.collection.UpdateOne(ctx, filter, update)
}

// UpdateMany applies a $set update to every matching document.
func (r *Repository[T]) UpdateMany(ctx context.Context, filter bson.M, set bson.M) (*mongo.UpdateResult, error) {
	return r.collection.UpdateMany(ctx, filter, bson.M{"$set": set})
}

// ReplaceOne upserts a full document.
func (r *Repository[T]) ReplaceOne(ctx context.Context, filter bson.M, document T) (*mongo.UpdateResult, error) {
	return r.collection.ReplaceOne(ctx, filter, document, options.Replace().SetUpsert(true))
}

// Count counts documents matching the filter.
func (r *Repository[T]) Count(ctx context.Context, filter bson.M) (int64, error) {
	return r.collection.CountDocuments(ctx, filter)
}

// Exists checks if a document matching the filter exists.
func (r *Repository[T]) Exists(ctx context.Context, filter bson.M) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
