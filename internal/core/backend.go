package core

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// FindOptions controls a cursor query.
type FindOptions struct {
	Projection map[string]bool
	Sort       bson.D
	Limit      *int64
	Skip       *int64
}

// BackendUpdateResult is what the backend reports for an update.
type BackendUpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    any
}

// Backend is one database handle of the document store. Implementations must be
// safe for concurrent use. Filters, updates and pipelines are already normalized.
type Backend interface {
	// Name returns the database name.
	Name() string
	InsertOne(ctx context.Context, coll string, doc M) (any, error)
	InsertMany(ctx context.Context, coll string, docs []M) ([]any, error)
	// FindOne returns nil and no error when nothing matches.
	FindOne(ctx context.Context, coll string, filter M, projection map[string]bool) (M, error)
	Find(ctx context.Context, coll string, filter M, opts FindOptions) ([]M, error)
	Count(ctx context.Context, coll string, filter M) (int64, error)
	UpdateOne(ctx context.Context, coll string, filter, update M, upsert bool) (*BackendUpdateResult, error)
	UpdateMany(ctx context.Context, coll string, filter, update M, upsert bool) (*BackendUpdateResult, error)
	DeleteOne(ctx context.Context, coll string, filter M) (int64, error)
	DeleteMany(ctx context.Context, coll string, filter M) (int64, error)
	Aggregate(ctx context.Context, coll string, pipeline []M) ([]M, error)
}

// Client is a pooled connection to one server. Several binds may share a Client.
type Client interface {
	// Database returns the handle for the named database.
	Database(name string) Backend
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// ConnConfig holds what is needed to dial one Client.
type ConnConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	PoolSize uint64
}

// Dialer creates Clients. DialMongo is the default.
type Dialer func(ctx context.Context, cfg ConnConfig) (Client, error)
