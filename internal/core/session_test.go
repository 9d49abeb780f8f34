package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/coregx/fesdql/internal/logger"
	"github.com/coregx/fesdql/internal/security"
	"github.com/coregx/fesdql/internal/tracer"
)

func TestSession_InsertOne(t *testing.T) {
	s, b := newTestSession()
	ctx := context.Background()

	id, err := s.InsertOne(ctx, s.Query().Collection("users").InsertQuery(M{"id": hexA, "name": "Alice"}))
	require.NoError(t, err)
	assert.Equal(t, hexA, id)

	calls := b.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, M{"_id": mustOID(t, hexA), "name": "Alice"}, calls[0].Docs[0])

	id, err = s.InsertOne(ctx, s.Query().Collection("users").InsertQuery(M{"name": "Bob"}))
	require.NoError(t, err)
	_, err = ToInternal(id)
	assert.NoError(t, err, "generated id is a public ObjectID string")
}

func TestSession_InsertOne_RejectsList(t *testing.T) {
	s, b := newTestSession()

	_, err := s.InsertOne(context.Background(), s.Query().Collection("users").InsertQuery([]M{{"a": 1}}))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, b.Calls())
}

func TestSession_InsertOne_RejectsNilDocument(t *testing.T) {
	s, b := newTestSession()

	_, err := s.InsertOne(context.Background(), s.Query().Collection("users").InsertQuery(M(nil)))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, b.Calls())
}

func TestSession_InsertMany(t *testing.T) {
	s, b := newTestSession()

	ids, err := s.InsertMany(context.Background(), s.Query().Collection("users").InsertQuery([]M{
		{"id": hexB, "name": "first"},
		{"name": "second"},
		{"id": hexA, "name": "third"},
	}))
	require.NoError(t, err)

	require.Len(t, ids, 3)
	assert.Equal(t, hexB, ids[0])
	assert.Equal(t, hexA, ids[2])
	assert.Equal(t, 1, b.CallCount(OpInsertMany))
}

func TestSession_InsertMany_InvalidArgument(t *testing.T) {
	tests := []struct {
		name    string
		payload any
	}{
		{"single mapping", M{"name": "Alice"}},
		{"scalar", 42},
		{"empty list", []M{}},
		{"list with scalar", []any{M{"a": 1}, "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, b := newTestSession()

			_, err := s.InsertMany(context.Background(), s.Query().Collection("users").InsertQuery(tt.payload))
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Empty(t, b.Calls(), "no backend call before validation")
		})
	}
}

func TestSession_FindOne(t *testing.T) {
	s, b := newTestSession()
	b.findOne = M{"_id": mustOID(t, hexA), "name": "Alice"}

	doc, err := s.FindOne(context.Background(), s.Query().Collection("users").
		Where(M{"id": hexA}).
		Exclude("password"))
	require.NoError(t, err)
	assert.Equal(t, M{"id": hexA, "name": "Alice"}, doc)

	call := b.Calls()[0]
	assert.Equal(t, M{"_id": mustOID(t, hexA)}, call.Filter)
	assert.Equal(t, map[string]bool{"password": false}, call.Opts.Projection)
}

func TestSession_FindOne_NotFound(t *testing.T) {
	s, _ := newTestSession()

	doc, err := s.FindOne(context.Background(), s.Query().Collection("users").Where(M{"name": "nobody"}))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSession_FindMany(t *testing.T) {
	s, b := newTestSession()
	b.find = func(FindOptions) []M {
		return []M{
			{"_id": mustOID(t, hexA), "age": 30},
			{"_id": mustOID(t, hexB), "age": 40},
		}
	}

	docs, err := s.FindMany(context.Background(), s.Query().Collection("users").
		Where(M{"age": Gte(18)}).
		OrderBy(Desc("age")).
		Paginate(2, 5))
	require.NoError(t, err)

	assert.Equal(t, []M{{"id": hexA, "age": 30}, {"id": hexB, "age": 40}}, docs)

	call := b.Calls()[0]
	assert.Equal(t, M{"age": M{"$gte": 18}}, call.Filter)
	assert.Equal(t, bson.D{{Key: "age", Value: -1}}, call.Opts.Sort)
	assert.Equal(t, ptr(5), call.Opts.Limit)
	assert.Equal(t, ptr(5), call.Opts.Skip)
}

func TestSession_FindAll_IgnoresPagination(t *testing.T) {
	s, b := newTestSession()

	_, err := s.FindAll(context.Background(), s.Query().Collection("users").Paginate(3, 10).OrderBy(Asc("name")))
	require.NoError(t, err)

	call := b.Calls()[0]
	assert.Nil(t, call.Opts.Limit)
	assert.Nil(t, call.Opts.Skip)
	assert.Len(t, call.Opts.Sort, 1)
}

func TestSession_FindCount(t *testing.T) {
	s, b := newTestSession()
	b.count = 42

	n, err := s.FindCount(context.Background(), s.Query().Collection("users").
		Where(M{"id": M{"in": []string{hexA}}}).
		Paginate(2, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	call := b.Calls()[0]
	assert.Equal(t, OpFindCount, call.Op)
	assert.Equal(t, M{"_id": M{"$in": []any{mustOID(t, hexA)}}}, call.Filter)
}

func TestSession_FindPaginated_FirstPageShortSkipsCount(t *testing.T) {
	s, b := newTestSession()
	b.count = 999
	b.find = func(FindOptions) []M { return []M{{"n": 1}, {"n": 2}, {"n": 3}} }

	page, err := s.FindPaginated(context.Background(), s.Query().Collection("users").Paginate(1, 10))
	require.NoError(t, err)

	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, 0, b.CallCount(OpFindCount))
}

func TestSession_FindPaginated_LaterPageCounts(t *testing.T) {
	s, b := newTestSession()
	b.count = 13
	b.find = func(FindOptions) []M { return []M{{"n": 11}} }

	page, err := s.FindPaginated(context.Background(), s.Query().Collection("users").Paginate(2, 10))
	require.NoError(t, err)

	assert.Equal(t, int64(13), page.Total)
	assert.Equal(t, 1, b.CallCount(OpFindCount))
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.PerPage)
	assert.Equal(t, 2, page.Pages())
}

func TestSession_FindPaginated_FullFirstPageCounts(t *testing.T) {
	s, b := newTestSession()
	b.count = 25
	b.find = func(o FindOptions) []M {
		docs := make([]M, *o.Limit)
		for i := range docs {
			docs[i] = M{"n": i}
		}
		return docs
	}

	page, err := s.FindPaginated(context.Background(), s.Query().Collection("users"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPage, page.Page)
	assert.Equal(t, DefaultPerPage, page.PerPage)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 1, b.CallCount(OpFindCount))
}

func TestSession_Update(t *testing.T) {
	s, b := newTestSession()
	upserted := primitive.NewObjectID()
	b.update = &BackendUpdateResult{MatchedCount: 0, ModifiedCount: 0, UpsertedID: upserted}

	res, err := s.UpdateOne(context.Background(), s.Query().Collection("users").
		Where(M{"id": hexA}).
		UpdateQuery(M{"name": "Alice", "age": 31}).
		Upsert(true))
	require.NoError(t, err)
	assert.Equal(t, upserted.Hex(), res.UpsertedID)

	call := b.Calls()[0]
	assert.Equal(t, OpUpdateOne, call.Op)
	assert.Equal(t, M{"_id": mustOID(t, hexA)}, call.Filter)
	assert.Equal(t, M{"$set": M{"name": "Alice", "age": 31}}, call.Update)
	assert.True(t, call.Upsert)
}

func TestSession_UpdateMany_Operator(t *testing.T) {
	s, b := newTestSession()
	b.update = &BackendUpdateResult{MatchedCount: 3, ModifiedCount: 2}

	res, err := s.UpdateMany(context.Background(), s.Query().Collection("users").
		Where(M{"age": Lt(18)}).
		UpdateQuery(M{"$inc": M{"age": 1}}))
	require.NoError(t, err)
	assert.Equal(t, &UpdateResult{MatchedCount: 3, ModifiedCount: 2}, res)
	assert.Equal(t, M{"$inc": M{"age": 1}}, b.Calls()[0].Update)
}

func TestSession_Update_EmptyPayload(t *testing.T) {
	s, b := newTestSession()

	_, err := s.UpdateOne(context.Background(), s.Query().Collection("users").UpdateQuery(M{}))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, b.Calls())
}

func TestSession_Delete(t *testing.T) {
	s, b := newTestSession()
	b.deleted = 2

	n, err := s.DeleteMany(context.Background(), s.Query().Collection("users").Where(M{"status": "gone"}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.DeleteOne(context.Background(), s.Query().Collection("users").Where(M{"id": hexA}).DeleteQuery())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, M{"_id": mustOID(t, hexA)}, b.Calls()[1].Filter)
}

func TestSession_Aggregate_Paged(t *testing.T) {
	s, b := newTestSession()
	b.aggregate = []M{{"_id": "A", "total": 10}}

	pipeline := []M{{"$match": M{"status": "A"}}}
	q := s.Query().Collection("orders").SelectQuery(true).Paginate(2, 10)
	for _, stage := range pipeline {
		q.Aggregation(stage)
	}

	docs, err := s.Aggregate(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []M{{"id": "A", "total": 10}}, docs)

	assert.Equal(t, []M{
		{"$match": M{"status": "A"}},
		{"$skip": int64(10)},
		{"$limit": int64(10)},
	}, b.Calls()[0].Pipeline)

	p, err := q.Render()
	require.NoError(t, err)
	assert.Len(t, p.Pipeline, 1, "query pipeline is not modified")
}

func TestSession_Aggregate_Unpaged(t *testing.T) {
	s, b := newTestSession()

	q := s.Query().Collection("orders").Aggregation(M{"$group": M{"_id": "$status"}}).SelectQuery(true).Paginate(2, 0)
	_, err := s.Aggregate(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, b.Calls()[0].Pipeline, 1)
}

func TestSession_ModeChecks(t *testing.T) {
	s, b := newTestSession()
	ctx := context.Background()

	_, err := s.FindMany(ctx, s.Query().Collection("users").InsertQuery(M{"a": 1}))
	assert.ErrorIs(t, err, ErrConflictingMode)

	_, err = s.Aggregate(ctx, s.Query().Collection("users"))
	assert.ErrorIs(t, err, ErrConflictingMode)

	_, err = s.UpdateOne(ctx, s.Query().Collection("users").Where(M{"a": 1}))
	assert.ErrorIs(t, err, ErrConflictingMode)

	_, err = s.DeleteOne(ctx, s.Query().Collection("users").UpdateQuery(M{"a": 1}))
	assert.ErrorIs(t, err, ErrConflictingMode)

	_, err = s.FindOne(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.FindOne(ctx, s.Query())
	assert.ErrorIs(t, err, ErrMissingCollection)

	assert.Empty(t, b.Calls())
}

func TestSession_InvalidIdentifierInFilter(t *testing.T) {
	s, b := newTestSession()

	_, err := s.FindOne(context.Background(), s.Query().Collection("users").Where(M{"id": "not-an-id"}))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	assert.Empty(t, b.Calls())
}

func TestSession_ErrorMapping(t *testing.T) {
	dupErr := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	nsErr := mongo.CommandError{Code: 73, Message: "Invalid namespace"}

	tests := []struct {
		name       string
		backendErr error
		run        func(s *Session) error
		wantKind   error
		wantStatus int
		wantCode   int
	}{
		{
			name:       "duplicate key",
			backendErr: dupErr,
			run: func(s *Session) error {
				_, err := s.InsertOne(context.Background(), s.Query().Collection("users").InsertQuery(M{"a": 1}))
				return err
			},
			wantKind:   ErrDuplicateKey,
			wantStatus: http.StatusConflict,
			wantCode:   MsgDuplicateKey,
		},
		{
			name:       "invalid namespace from server",
			backendErr: nsErr,
			run: func(s *Session) error {
				_, err := s.FindMany(context.Background(), s.Query().Collection("users"))
				return err
			},
			wantKind:   ErrInvalidCollectionName,
			wantStatus: http.StatusBadRequest,
			wantCode:   MsgInvalidCollectionName,
		},
		{
			name: "invalid namespace client side",
			run: func(s *Session) error {
				_, err := s.FindCount(context.Background(), s.Query().Collection("bad$name"))
				return err
			},
			wantKind:   ErrInvalidCollectionName,
			wantStatus: http.StatusBadRequest,
			wantCode:   MsgInvalidCollectionName,
		},
		{
			name:       "insert",
			backendErr: errors.New("boom"),
			run: func(s *Session) error {
				_, err := s.InsertMany(context.Background(), s.Query().Collection("users").InsertQuery([]M{{"a": 1}}))
				return err
			},
			wantKind: ErrBackend, wantStatus: http.StatusBadRequest, wantCode: MsgInsertFailed,
		},
		{
			name:       "update",
			backendErr: errors.New("boom"),
			run: func(s *Session) error {
				_, err := s.UpdateMany(context.Background(), s.Query().Collection("users").UpdateQuery(M{"a": 1}))
				return err
			},
			wantKind: ErrBackend, wantStatus: http.StatusBadRequest, wantCode: MsgUpdateFailed,
		},
		{
			name:       "delete",
			backendErr: errors.New("boom"),
			run: func(s *Session) error {
				_, err := s.DeleteOne(context.Background(), s.Query().Collection("users"))
				return err
			},
			wantKind: ErrBackend, wantStatus: http.StatusBadRequest, wantCode: MsgDeleteFailed,
		},
		{
			name:       "find one",
			backendErr: errors.New("boom"),
			run: func(s *Session) error {
				_, err := s.FindOne(context.Background(), s.Query().Collection("users"))
				return err
			},
			wantKind: ErrBackend, wantStatus: http.StatusBadRequest, wantCode: MsgFindOneFailed,
		},
		{
			name:       "count",
			backendErr: errors.New("boom"),
			run: func(s *Session) error {
				_, err := s.FindCount(context.Background(), s.Query().Collection("users"))
				return err
			},
			wantKind: ErrBackend, wantStatus: http.StatusBadRequest, wantCode: MsgFindManyFailed,
		},
		{
			name:       "aggregate",
			backendErr: errors.New("boom"),
			run: func(s *Session) error {
				_, err := s.Aggregate(context.Background(), s.Query().Collection("users").SelectQuery(true))
				return err
			},
			wantKind: ErrBackend, wantStatus: http.StatusBadRequest, wantCode: MsgAggregateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, b := newTestSession()
			b.err = tt.backendErr

			err := tt.run(s)
			require.Error(t, err)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.wantStatus, e.Status)
			assert.Equal(t, tt.wantStatus, StatusCode(err))
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, s.messages.Text(tt.wantCode, true), e.Message)

			if tt.backendErr != nil {
				assert.False(t, errors.Is(err, tt.backendErr), "raw backend error must not leak")
				assert.Equal(t, tt.backendErr, e.Cause)
			}
		})
	}
}

func TestSession_ErrorLocale(t *testing.T) {
	s, b := newTestSession()
	s.env.useZh = false
	b.err = errors.New("boom")

	_, err := s.FindOne(context.Background(), s.Query().Collection("users"))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Failed to find document, please check the filter.", e.Message)
	assert.Equal(t, "find_one users: Failed to find document, please check the filter.", e.Error())
}

func TestSession_LogsOnceWithMaskedFilter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s, b := newTestSession()
	s.env.logger = logger.NewZapAdapter(zap.New(core))
	b.err = errors.New("boom")

	_, err := s.FindOne(context.Background(), s.Query().Collection("users").Where(M{"password": "hunter2"}))
	require.Error(t, err)

	failures := logs.FilterMessage("operation failed").All()
	require.Len(t, failures, 1)

	fields := failures[0].ContextMap()
	assert.Equal(t, "users", fields["collection"])
	assert.Equal(t, OpFindOne, fields["operation"])
	assert.Contains(t, fields["filter"], "***REDACTED***")
	assert.NotContains(t, fields["filter"], "hunter2")
}

func TestSession_Hook(t *testing.T) {
	s, b := newTestSession()

	var mu sync.Mutex
	var events []OperationEvent
	s.env.hook = func(_ context.Context, e OperationEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	b.find = func(FindOptions) []M { return []M{{"a": 1}, {"a": 2}} }
	_, err := s.FindMany(context.Background(), s.Query().Collection("users"))
	require.NoError(t, err)

	b.err = errors.New("boom")
	_, err = s.DeleteMany(context.Background(), s.Query().Collection("users"))
	require.Error(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "testdb", events[0].Database)
	assert.Equal(t, OpFindMany, events[0].Operation)
	assert.Equal(t, int64(2), events[0].Documents)
	assert.NoError(t, events[0].Error)

	assert.Equal(t, OpDeleteMany, events[1].Operation)
	assert.ErrorIs(t, events[1].Error, ErrBackend)
}

func TestSession_Tracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	s, _ := newTestSession()
	s.env.tracer = tracer.NewOtelTracer(tp.Tracer("fesdql-test"))

	_, err := s.FindCount(context.Background(), s.Query().Collection("users").Where(M{"a": 1}))
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "fesdql.find_count", spans[0].Name)

	attrs := make(map[string]any)
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "mongodb", attrs["db.system"])
	assert.Equal(t, "testdb", attrs["db.name"])
	assert.Equal(t, "users", attrs["db.mongodb.collection"])
	assert.Equal(t, OpFindCount, attrs["db.operation"])
}

func TestSession_OperatorValidator(t *testing.T) {
	s, b := newTestSession()
	s.env.validator = security.NewValidator(security.WithStrict(true))

	_, err := s.FindMany(context.Background(), s.Query().Collection("users").Where(M{"$where": "sleep(100)"}))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.Aggregate(context.Background(), s.Query().Collection("users").
		Aggregation(M{"$out": "copy"}).
		SelectQuery(true))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.UpdateOne(context.Background(), s.Query().Collection("users").
		UpdateQuery(M{"$set": M{"x": M{"$function": M{}}}}))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, b.Calls())

	_, err = s.FindMany(context.Background(), s.Query().Collection("users").Where(M{"age": Gt(1)}))
	assert.NoError(t, err)
}

func TestSession_OperatorValidator_TypedBranches(t *testing.T) {
	s, b := newTestSession()
	s.env.validator = security.NewValidator()
	ctx := context.Background()

	_, err := s.FindMany(ctx, s.Query().Collection("users").
		Where(M{"$or": []M{{"name": "x"}, {"$where": "sleep(1000)"}}}))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.FindCount(ctx, s.Query().Collection("users").
		Where(M{"$and": []bson.D{{{Key: "$where", Value: "1"}}}}))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.Aggregate(ctx, s.Query().Collection("users").
		Aggregation(M{"$facet": M{"recent": []M{{"$match": M{"$where": "1"}}}}}).
		SelectQuery(true))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, b.Calls())
}

func TestSession_Auditor(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s, _ := newTestSession()
	s.env.auditor = security.NewAuditor(logger.NewZapAdapter(zap.New(core)), security.AuditWrites)

	ctx := security.WithUser(context.Background(), "alice")
	_, err := s.InsertOne(ctx, s.Query().Collection("users").InsertQuery(M{"a": 1}))
	require.NoError(t, err)
	_, err = s.FindMany(ctx, s.Query().Collection("users"))
	require.NoError(t, err)

	events := logs.FilterMessage("audit_event").All()
	require.Len(t, events, 1)
	assert.Equal(t, OpInsertOne, events[0].ContextMap()["operation"])
	assert.Equal(t, "alice", events[0].ContextMap()["user"])
}

func TestSession_ConcurrentUse(t *testing.T) {
	s, b := newTestSession()
	b.count = 1

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.FindCount(context.Background(), s.Query().Collection("users"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, b.CallCount(OpFindCount))
}
