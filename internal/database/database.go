package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/config"
	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/store"
)

// Connect opens the configured document store. Mongo connections are pinged
// and get their indexes ensured before returning.
func Connect(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (store.Store, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		return store.NewMemory(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout())
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetServerSelectionTimeout(cfg.MongoTimeout()).
		SetAppName("diary")
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	db := client.Database(cfg.Mongo.Database)
	if err := EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return store.NewMongo(client, cfg.Mongo.Database, logger), nil
}

// EnsureIndexes creates the unique application id index on every collection
// and the ordering indexes used by list queries.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for _, coll := range models.AllCollections {
		_, err := db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("id_unique"),
		})
		if err != nil {
			return fmt.Errorf("%s id index: %w", coll, err)
		}
	}

	ordered := []struct {
		coll   string
		parent string
	}{
		{models.CollectionCards, "diaryId"},
		{models.CollectionBeforeItems, "situationId"},
		{models.CollectionAfterItems, "beforeItemId"},
		{models.CollectionSituations, ""},
	}
	for _, o := range ordered {
		keys := bson.D{}
		if o.parent != "" {
			keys = append(keys, bson.E{Key: o.parent, Value: 1})
		}
		keys = append(keys, bson.E{Key: "order", Value: 1})
		if _, err := db.Collection(o.coll).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys}); err != nil {
			return fmt.Errorf("%s order index: %w", o.coll, err)
		}
	}

	_, err := db.Collection(models.CollectionDiaries).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("diaries createdAt index: %w", err)
	}
	return nil
}
