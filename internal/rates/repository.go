package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	pkgerrors "ratefeed/pkg/errors"
	"ratefeed/pkg/metrics"
)

type Repository interface {
	Upsert(ctx context.Context, doc *RateDocument) error
	Get(ctx context.Context, id string) (*RateDocument, error)
	List(ctx context.Context, limit, offset int) ([]RateDocument, error)
	Count(ctx context.Context) (int64, error)
	Indexes(ctx context.Context) ([]IndexInfo, error)
	Ping(ctx context.Context) error
}

type MongoRepository struct {
	collection *mongo.Collection
	database   string
}

func NewRepository(db *mongo.Database, collection string) Repository {
	return &MongoRepository{
		collection: db.Collection(collection),
		database:   db.Name(),
	}
}

func (r *MongoRepository) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DatabaseQueriesTotal.WithLabelValues(r.database, op, status).Inc()
	metrics.ObserveDatabaseQueryDuration(r.database, op, time.Since(start))
}

func (r *MongoRepository) Upsert(ctx context.Context, doc *RateDocument) error {
	start := time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	r.observe("upsert", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert rate document: %w", err)
	}
	return nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*RateDocument, error) {
	start := time.Now()

	var doc RateDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		r.observe("get", start, nil)
		return nil, pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("rate snapshot '%s' not found", id))
	}
	r.observe("get", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate document: %w", err)
	}

	return &doc, nil
}

func (r *MongoRepository) List(ctx context.Context, limit, offset int) ([]RateDocument, error) {
	start := time.Now()
	opts := options.Find().
		SetSort(bson.D{{Key: "stored_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		r.observe("list", start, err)
		return nil, fmt.Errorf("failed to list rate documents: %w", err)
	}
	defer cursor.Close(ctx)

	docs := make([]RateDocument, 0)
	err = cursor.All(ctx, &docs)
	r.observe("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rate documents: %w", err)
	}

	return docs, nil
}

func (r *MongoRepository) Count(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	r.observe("count", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count rate documents: %w", err)
	}
	return count, nil
}

func (r *MongoRepository) Indexes(ctx context.Context) ([]IndexInfo, error) {
	start := time.Now()
	cursor, err := r.collection.Indexes().List(ctx)
	if err != nil {
		r.observe("indexes", start, err)
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer cursor.Close(ctx)

	var raw []struct {
		Name   string `bson:"name"`
		Key    bson.D `bson:"key"`
		Unique bool   `bson:"unique"`
	}
	err = cursor.All(ctx, &raw)
	r.observe("indexes", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to decode indexes: %w", err)
	}

	infos := make([]IndexInfo, 0, len(raw))
	for _, idx := range raw {
		keys := make(map[string]interface{}, len(idx.Key))
		for _, elem := range idx.Key {
			keys[elem.Key] = elem.Value
		}
		infos = append(infos, IndexInfo{
			Name:   idx.Name,
			Keys:   keys,
			Unique: idx.Unique,
		})
	}

	return infos, nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	if err := r.collection.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return pkgerrors.ErrStoreUnavailable.WithCause(err)
	}
	return nil
}
