//go:build integration
// +build integration

package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/fesdql"
)

func TestSession_CRUD(t *testing.T) {
	ms := SetupMongo(t)
	defer ms.Close()

	s := ms.Session
	ctx := context.Background()
	users := func() *fesdql.Query { return s.Query().Collection("users") }

	id, err := s.InsertOne(ctx, users().InsertQuery(fesdql.M{"name": "alice", "age": 30}))
	require.NoError(t, err)
	require.Len(t, id, 24)

	doc, err := s.FindOne(ctx, users().Where(fesdql.M{"id": id}))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, id, doc["id"])
	assert.Equal(t, "alice", doc["name"])
	assert.NotContains(t, doc, "_id")

	res, err := s.UpdateOne(ctx, users().Where(fesdql.M{"id": id}).UpdateQuery(fesdql.M{"age": 31}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.MatchedCount)
	assert.Equal(t, int64(1), res.ModifiedCount)

	doc, err = s.FindOne(ctx, users().Where(fesdql.M{"age": fesdql.M{"gte": 31}}))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.EqualValues(t, 31, doc["age"])

	deleted, err := s.DeleteOne(ctx, users().Where(fesdql.M{"id": id}).DeleteQuery())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	doc, err = s.FindOne(ctx, users().Where(fesdql.M{"id": id}))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSession_InsertManyKeepsOrder(t *testing.T) {
	ms := SetupMongo(t)
	defer ms.Close()

	s := ms.Session
	ctx := context.Background()

	ids := InsertTestMessages(t, s, 5, 1)

	docs, err := s.FindMany(ctx, s.Query().CollectionOf(Message{}).
		Where(fesdql.M{"id": fesdql.M{"in": ids}}).
		OrderBy(fesdql.Asc("uid")))
	require.NoError(t, err)
	require.Len(t, docs, 5)
	for i, d := range docs {
		assert.Equal(t, ids[i], d["id"])
	}
}

func TestSession_DuplicateKey(t *testing.T) {
	ms := SetupMongo(t)
	defer ms.Close()

	s := ms.Session
	ctx := context.Background()

	id, err := s.InsertOne(ctx, s.Query().Collection("users").InsertQuery(fesdql.M{"name": "alice"}))
	require.NoError(t, err)

	_, err = s.InsertOne(ctx, s.Query().Collection("users").InsertQuery(fesdql.M{"id": id, "name": "bob"}))
	require.ErrorIs(t, err, fesdql.ErrDuplicateKey)
	assert.Equal(t, 409, fesdql.StatusCode(err))

	var e *fesdql.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Document already exists, duplicate key.", e.Message)
}

func TestSession_Paginate(t *testing.T) {
	ms := SetupMongo(t)
	defer ms.Close()

	s := ms.Session
	ctx := context.Background()

	InsertTestMessages(t, s, 25, 1)
	InsertTestMessages(t, s, 3, 2)

	page, err := s.FindPaginated(ctx, s.Query().CollectionOf(Message{}).
		Where(fesdql.M{"mailbox_id": 1}).
		Exclude("subject").
		OrderBy(fesdql.Asc("uid")).
		Paginate(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 3, page.Pages())
	require.Len(t, page.Items, 10)
	assert.NotContains(t, page.Items[0], "subject")

	var uids []int64
	for p := page; ; {
		for _, d := range p.Items {
			uids = append(uids, asInt(t, d["uid"]))
		}
		if !p.HasNext() {
			break
		}
		p, err = p.Next(ctx)
		require.NoError(t, err)
	}
	require.Len(t, uids, 25)
	assert.Equal(t, int64(1), uids[0])
	assert.Equal(t, int64(25), uids[24])

	n, err := s.FindCount(ctx, s.Query().CollectionOf(Message{}))
	require.NoError(t, err)
	assert.Equal(t, int64(28), n)
}

func TestSession_UpsertAndUpdateMany(t *testing.T) {
	ms := SetupMongo(t)
	defer ms.Close()

	s := ms.Session
	ctx := context.Background()
	coll := func() *fesdql.Query { return s.Query().Collection("counters") }

	res, err := s.UpdateOne(ctx, coll().Where(fesdql.M{"name": "visits"}).
		UpdateQuery(fesdql.M{"$inc": fesdql.M{"n": 1}}).
		Upsert(true))
	require.NoError(t, err)
	assert.Len(t, res.UpsertedID, 24)

	InsertTestMessages(t, s, 6, 1)
	res, err = s.UpdateMany(ctx, s.Query().CollectionOf(Message{}).
		Where(fesdql.M{"status": 0}).
		UpdateQuery(fesdql.M{"status": 9}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.ModifiedCount)

	deleted, err := s.DeleteMany(ctx, s.Query().CollectionOf(Message{}).Where(fesdql.M{"status": 9}).DeleteQuery())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestSession_Aggregate(t *testing.T) {
	ms := SetupMongo(t)
	defer ms.Close()

	s := ms.Session
	ctx := context.Background()

	InsertTestMessages(t, s, 4, 1)
	InsertTestMessages(t, s, 2, 2)
	InsertTestMessages(t, s, 1, 3)

	q := func() *fesdql.Query {
		return s.Query().CollectionOf(Message{}).SelectQuery(true).
			Aggregation(fesdql.M{"$group": fesdql.M{"_id": "$mailbox_id", "count": fesdql.M{"$sum": 1}}}).
			Aggregation(fesdql.M{"$sort": fesdql.M{"_id": 1}})
	}

	all, err := s.Aggregate(ctx, q())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0]["id"])
	assert.EqualValues(t, 4, all[0]["count"])

	second, err := s.Aggregate(ctx, q().Paginate(2, 2))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "3", second[0]["id"])
}

func TestSession_Async(t *testing.T) {
	ms := SetupMongo(t)
	defer ms.Close()

	s := ms.Session
	ctx := context.Background()
	a := s.Async()

	InsertTestMessages(t, s, 3, 1)

	count := a.FindCount(ctx, s.Query().CollectionOf(Message{}))
	docs := a.FindAll(ctx, s.Query().CollectionOf(Message{}))

	n, err := count.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	all, err := docs.Await(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSession_ShardedSchema(t *testing.T) {
	ms := SetupMongo(t)
	defer ms.Close()

	s := ms.Session
	ctx := context.Background()

	shard, err := fesdql.GenSchema(Attachment{}, "2024")
	require.NoError(t, err)
	assert.Equal(t, "attachments_2024", shard.Collection)

	_, err = s.InsertOne(ctx, s.Query().CollectionOf(shard).
		InsertQuery(Attachment{MessageID: "m1", Filename: "a.pdf", Size: 10}))
	require.NoError(t, err)

	n, err := s.FindCount(ctx, s.Query().CollectionOf(shard))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.FindCount(ctx, s.Query().CollectionOf(Attachment{}))
	require.NoError(t, err)
	assert.Zero(t, n)
}

// asInt reads an integer the server may return as int32 or int64.
func asInt(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	default:
		t.Fatalf("%v is %T, not an integer", v, v)
		return 0
	}
}
