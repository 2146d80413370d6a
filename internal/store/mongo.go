package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const mongoWatchBuffer = 64

// Mongo implements Store on a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongo wraps an already connected client.
func NewMongo(client *mongo.Client, database string, logger *zap.Logger) *Mongo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mongo{client: client, db: client.Database(database), logger: logger.Named("MongoStore")}
}

// Database exposes the underlying database for index management.
func (m *Mongo) Database() *mongo.Database { return m.db }

func (m *Mongo) Insert(ctx context.Context, collection string, doc any) error {
	_, err := m.db.Collection(collection).InsertOne(ctx, doc)
	return err
}

func (m *Mongo) InsertMany(ctx context.Context, collection string, docs []any) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.db.Collection(collection).InsertMany(ctx, docs)
	return err
}

func (m *Mongo) FindOne(ctx context.Context, collection string, filter bson.M, out any) (bool, error) {
	err := m.db.Collection(collection).FindOne(ctx, nonNil(filter)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Mongo) Find(ctx context.Context, collection string, q Query, out any) error {
	opts := options.Find()
	if len(q.Sort) > 0 {
		sortDoc := bson.D{}
		for _, s := range q.Sort {
			dir := 1
			if s.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: s.Field, Value: dir})
		}
		opts.SetSort(sortDoc)
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cur, err := m.db.Collection(collection).Find(ctx, nonNil(q.Filter), opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func (m *Mongo) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	return m.db.Collection(collection).CountDocuments(ctx, nonNil(filter))
}

func (m *Mongo) Update(ctx context.Context, collection string, filter bson.M, u Update) (int64, error) {
	update := bson.M{}
	if len(u.Set) > 0 {
		update["$set"] = u.Set
	}
	if len(u.Inc) > 0 {
		update["$inc"] = u.Inc
	}
	if len(update) == 0 {
		return m.Count(ctx, collection, filter)
	}
	res, err := m.db.Collection(collection).UpdateMany(ctx, nonNil(filter), update)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (m *Mongo) Delete(ctx context.Context, collection string, filter bson.M) (int64, error) {
	res, err := m.db.Collection(collection).DeleteMany(ctx, nonNil(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	FullDocument  bson.M `bson:"fullDocument"`
}

// Watch opens a change stream on collection. Updates are delivered with the
// post-image looked up by the server; deletes carry no document.
func (m *Mongo) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := m.db.Collection(collection).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, fmt.Errorf("open change stream on %s: %w", collection, err)
	}

	ch := make(chan Change, mongoWatchBuffer)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				m.logger.Warn("decode change event failed", zap.String("collection", collection), zap.Error(err))
				continue
			}
			select {
			case ch <- Change{Op: Op(ev.OperationType), Collection: collection, Document: ev.FullDocument}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("change stream closed", zap.String("collection", collection), zap.Error(err))
		}
	}()
	return ch, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func nonNil(f bson.M) bson.M {
	if f == nil {
		return bson.M{}
	}
	return f
}
