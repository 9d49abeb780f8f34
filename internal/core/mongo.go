package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DialMongo connects a mongo-driver client. The driver pool is sized once here.
func DialMongo(ctx context.Context, cfg ConnConfig) (Client, error) {
	opts := options.Client().
		SetHosts([]string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))}).
		SetMaxPoolSize(cfg.PoolSize)

	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connection failed host=%s port=%d: %w", cfg.Host, cfg.Port, err)
	}

	return &mongoClient{client: client}, nil
}

type mongoClient struct {
	client *mongo.Client
}

func (c *mongoClient) Database(name string) Backend {
	return &mongoBackend{db: c.client.Database(name)}
}

func (c *mongoClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, nil)
}

func (c *mongoClient) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// mongoBackend adapts *mongo.Database to Backend.
type mongoBackend struct {
	db *mongo.Database
}

func (b *mongoBackend) Name() string {
	return b.db.Name()
}

func nonNil(filter M) M {
	if filter == nil {
		return M{}
	}
	return filter
}

func (b *mongoBackend) InsertOne(ctx context.Context, coll string, doc M) (any, error) {
	res, err := b.db.Collection(coll).InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (b *mongoBackend) InsertMany(ctx context.Context, coll string, docs []M) ([]any, error) {
	payload := make([]any, len(docs))
	for i, d := range docs {
		payload[i] = d
	}

	res, err := b.db.Collection(coll).InsertMany(ctx, payload)
	if err != nil {
		return nil, err
	}
	return res.InsertedIDs, nil
}

func (b *mongoBackend) FindOne(ctx context.Context, coll string, filter M, projection map[string]bool) (M, error) {
	opts := options.FindOne()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}

	var doc M
	err := b.db.Collection(coll).FindOne(ctx, nonNil(filter), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (b *mongoBackend) Find(ctx context.Context, coll string, filter M, fo FindOptions) ([]M, error) {
	opts := options.Find()
	if len(fo.Projection) > 0 {
		opts.SetProjection(fo.Projection)
	}
	if len(fo.Sort) > 0 {
		opts.SetSort(fo.Sort)
	}
	if fo.Limit != nil {
		opts.SetLimit(*fo.Limit)
	}
	if fo.Skip != nil {
		opts.SetSkip(*fo.Skip)
	}

	cursor, err := b.db.Collection(coll).Find(ctx, nonNil(filter), opts)
	if err != nil {
		return nil, err
	}

	docs := []M{}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (b *mongoBackend) Count(ctx context.Context, coll string, filter M) (int64, error) {
	return b.db.Collection(coll).CountDocuments(ctx, nonNil(filter))
}

func (b *mongoBackend) UpdateOne(ctx context.Context, coll string, filter, update M, upsert bool) (*BackendUpdateResult, error) {
	res, err := b.db.Collection(coll).UpdateOne(ctx, nonNil(filter), update, options.Update().SetUpsert(upsert))
	return updateResult(res, err)
}

func (b *mongoBackend) UpdateMany(ctx context.Context, coll string, filter, update M, upsert bool) (*BackendUpdateResult, error) {
	res, err := b.db.Collection(coll).UpdateMany(ctx, nonNil(filter), update, options.Update().SetUpsert(upsert))
	return updateResult(res, err)
}

func updateResult(res *mongo.UpdateResult, err error) (*BackendUpdateResult, error) {
	if err != nil {
		return nil, err
	}
	return &BackendUpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedID:    res.UpsertedID,
	}, nil
}

func (b *mongoBackend) DeleteOne(ctx context.Context, coll string, filter M) (int64, error) {
	res, err := b.db.Collection(coll).DeleteOne(ctx, nonNil(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (b *mongoBackend) DeleteMany(ctx context.Context, coll string, filter M) (int64, error) {
	res, err := b.db.Collection(coll).DeleteMany(ctx, nonNil(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (b *mongoBackend) Aggregate(ctx context.Context, coll string, pipeline []M) ([]M, error) {
	stages := make(bson.A, len(pipeline))
	for i, s := range pipeline {
		stages[i] = s
	}

	cursor, err := b.db.Collection(coll).Aggregate(ctx, stages)
	if err != nil {
		return nil, err
	}

	docs := []M{}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// invalidNamespaceCode is the server error code for a malformed namespace.
const invalidNamespaceCode = 73

// classifyBackendError maps a driver error to an error kind.
// Errors that already carry a kind keep it.
func classifyBackendError(err error) error {
	for _, kind := range []error{ErrDuplicateKey, ErrInvalidCollectionName} {
		if errors.Is(err, kind) {
			return kind
		}
	}

	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}

	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(invalidNamespaceCode) {
		return ErrInvalidCollectionName
	}

	return ErrBackend
}
