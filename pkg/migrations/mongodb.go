package migrations

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Server codes for an index name that already exists with a different
// definition.
const (
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// EnsureRateStore creates the secondary indexes on the rates collection.
// Safe to run on every startup, existing indexes are left alone. The _id
// uniqueness that backs upsert idempotency needs no index of its own.
func EnsureRateStore(ctx context.Context, db *mongo.Database, collection string) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "base", Value: 1}, {Key: "observed_at", Value: -1}},
			Options: options.Index().SetName("idx_rate_snapshots_base_observed_at"),
		},
		{
			Keys:    bson.D{{Key: "fetched_at_epoch", Value: -1}},
			Options: options.Index().SetName("idx_rate_snapshots_fetched_at_epoch"),
		},
		{
			Keys:    bson.D{{Key: "stored_at", Value: -1}},
			Options: options.Index().SetName("idx_rate_snapshots_stored_at"),
		},
	}

	if _, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes); err != nil {
		if indexConflict(err) {
			return nil
		}
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// indexConflict reports whether the server kept an older definition under one
// of our index names. Startup proceeds on the old shape, queries still work.
func indexConflict(err error) bool {
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) {
		return srvErr.HasErrorCode(codeIndexOptionsConflict) || srvErr.HasErrorCode(codeIndexKeySpecsConflict)
	}
	return false
}
