//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/coregx/fesdql"
)

const (
	mongoImage    = "mongo:7"
	mongoUsername = "root"
	mongoPassword = "secret"
)

// MongoSetup encapsulates a registry bound to a throwaway database and its cleanup.
type MongoSetup struct {
	Config    fesdql.Config
	Registry  *fesdql.Registry
	Session   *fesdql.Session
	Container testcontainers.Container
}

// Close drops the test database and releases the registry and container.
func (ms *MongoSetup) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		SetHosts([]string{ms.Config.Host + ":" + strconv.Itoa(ms.Config.Port)}).
		SetAuth(options.Credential{Username: ms.Config.Username, Password: ms.Config.Password}))
	if err == nil {
		client.Database(ms.Config.DBName).Drop(ctx) //nolint:errcheck
		for _, b := range ms.Config.Binds {
			client.Database(b.DBName).Drop(ctx) //nolint:errcheck
		}
		client.Disconnect(ctx) //nolint:errcheck
	}

	if ms.Registry != nil {
		ms.Registry.Close(ctx) //nolint:errcheck
	}
	if ms.Container != nil {
		ms.Container.Terminate(ctx) //nolint:errcheck
	}
}

// SetupMongo creates a registry for a fresh database.
// Uses MONGO_TEST_HOST if set, otherwise starts MongoDB via testcontainers.
func SetupMongo(t *testing.T, opts ...fesdql.Option) *MongoSetup {
	t.Helper()
	ctx := context.Background()

	cfg := fesdql.DefaultConfig()
	cfg.DBName = dbName(t)
	cfg.UseZh = false

	var container testcontainers.Container

	if host := os.Getenv("MONGO_TEST_HOST"); host != "" {
		cfg.Host = host
		if port := os.Getenv("MONGO_TEST_PORT"); port != "" {
			p, err := strconv.Atoi(port)
			require.NoError(t, err)
			cfg.Port = p
		}
		cfg.Username = os.Getenv("MONGO_TEST_USERNAME")
		cfg.Password = os.Getenv("MONGO_TEST_PASSWORD")
	} else {
		c, err := mongodb.Run(ctx, mongoImage,
			mongodb.WithUsername(mongoUsername),
			mongodb.WithPassword(mongoPassword),
		)
		if err != nil {
			t.Skip("Docker not available for MongoDB integration tests: " + err.Error())
		}
		container = c

		host, err := c.Host(ctx)
		require.NoError(t, err)
		port, err := c.MappedPort(ctx, "27017/tcp")
		require.NoError(t, err)

		cfg.Host = host
		cfg.Port = port.Int()
		cfg.Username = mongoUsername
		cfg.Password = mongoPassword
	}

	return openSetup(t, cfg, container, opts...)
}

// SetupMongoWithBinds is SetupMongo with one extra bind per name, each on its
// own database of the same server.
func SetupMongoWithBinds(t *testing.T, names ...string) *MongoSetup {
	t.Helper()

	base := SetupMongo(t)
	base.Registry.Close(context.Background()) //nolint:errcheck

	cfg := base.Config
	cfg.Binds = make(map[string]fesdql.BindConfig, len(names))
	for _, name := range names {
		cfg.Binds[name] = fesdql.BindConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			DBName:   cfg.DBName + "_" + name,
		}
	}
	return openSetup(t, cfg, base.Container)
}

func openSetup(t *testing.T, cfg fesdql.Config, container testcontainers.Container, opts ...fesdql.Option) *MongoSetup {
	t.Helper()
	ctx := context.Background()

	ms := &MongoSetup{Config: cfg, Container: container}

	reg, err := fesdql.NewRegistry(cfg, opts...)
	if err != nil {
		ms.Close()
		require.NoError(t, err)
	}
	ms.Registry = reg

	if err = reg.Open(ctx); err != nil {
		ms.Close()
		require.NoError(t, err)
	}

	ms.Session, err = reg.Session()
	require.NoError(t, err)

	return ms
}

// dbName derives a database name from the test name.
func dbName(t *testing.T) string {
	name := strings.NewReplacer("/", "_", " ", "_", ".", "_").Replace(t.Name())
	name = strings.ToLower(name)
	if len(name) > 40 {
		name = name[:40]
	}
	return "fesdql_" + name
}

// InsertTestMessages inserts count messages into mailbox and returns their ids.
func InsertTestMessages(t *testing.T, s *fesdql.Session, count, mailboxID int) []string {
	t.Helper()

	docs := make([]any, count)
	for i := range docs {
		docs[i] = Message{
			MailboxID: mailboxID,
			UID:       i + 1,
			Status:    i % 3,
			Size:      (i + 1) * 100,
			Subject:   "Message " + strconv.Itoa(i+1),
			CreatedAt: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
		}
	}

	ids, err := s.InsertMany(context.Background(), s.Query().CollectionOf(Message{}).InsertQuery(docs))
	require.NoError(t, err)
	require.Len(t, ids, count)
	return ids
}
