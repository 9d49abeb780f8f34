package core

import (
	"context"
	"maps"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeCall records one backend round-trip.
type fakeCall struct {
	Op       string
	Coll     string
	Filter   M
	Update   M
	Upsert   bool
	Docs     []M
	Pipeline []M
	Opts     FindOptions
}

// fakeBackend is an in-memory Backend returning programmed results.
type fakeBackend struct {
	mu    sync.Mutex
	name  string
	calls []fakeCall

	findOne   M
	find      func(opts FindOptions) []M
	count     int64
	update    *BackendUpdateResult
	deleted   int64
	aggregate []M
	err       error
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{name: name}
}

func (b *fakeBackend) record(c fakeCall) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
}

func (b *fakeBackend) Calls() []fakeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]fakeCall(nil), b.calls...)
}

func (b *fakeBackend) CallCount(op string) int {
	n := 0
	for _, c := range b.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) InsertOne(_ context.Context, coll string, doc M) (any, error) {
	b.record(fakeCall{Op: OpInsertOne, Coll: coll, Docs: []M{doc}})
	if b.err != nil {
		return nil, b.err
	}
	if id, ok := doc[nativeKey]; ok {
		return id, nil
	}
	return primitive.NewObjectID(), nil
}

func (b *fakeBackend) InsertMany(_ context.Context, coll string, docs []M) ([]any, error) {
	b.record(fakeCall{Op: OpInsertMany, Coll: coll, Docs: docs})
	if b.err != nil {
		return nil, b.err
	}
	ids := make([]any, len(docs))
	for i, d := range docs {
		if id, ok := d[nativeKey]; ok {
			ids[i] = id
			continue
		}
		ids[i] = primitive.NewObjectID()
	}
	return ids, nil
}

func (b *fakeBackend) FindOne(_ context.Context, coll string, filter M, projection map[string]bool) (M, error) {
	b.record(fakeCall{Op: OpFindOne, Coll: coll, Filter: filter, Opts: FindOptions{Projection: projection}})
	if b.err != nil {
		return nil, b.err
	}
	if b.findOne == nil {
		return nil, nil
	}
	return maps.Clone(b.findOne), nil
}

func (b *fakeBackend) Find(_ context.Context, coll string, filter M, opts FindOptions) ([]M, error) {
	b.record(fakeCall{Op: OpFindMany, Coll: coll, Filter: filter, Opts: opts})
	if b.err != nil {
		return nil, b.err
	}
	if b.find == nil {
		return []M{}, nil
	}
	docs := b.find(opts)
	out := make([]M, len(docs))
	for i, d := range docs {
		out[i] = maps.Clone(d)
	}
	return out, nil
}

func (b *fakeBackend) Count(_ context.Context, coll string, filter M) (int64, error) {
	b.record(fakeCall{Op: OpFindCount, Coll: coll, Filter: filter})
	if b.err != nil {
		return 0, b.err
	}
	return b.count, nil
}

func (b *fakeBackend) UpdateOne(_ context.Context, coll string, filter, update M, upsert bool) (*BackendUpdateResult, error) {
	return b.doUpdate(OpUpdateOne, coll, filter, update, upsert)
}

func (b *fakeBackend) UpdateMany(_ context.Context, coll string, filter, update M, upsert bool) (*BackendUpdateResult, error) {
	return b.doUpdate(OpUpdateMany, coll, filter, update, upsert)
}

func (b *fakeBackend) doUpdate(op, coll string, filter, update M, upsert bool) (*BackendUpdateResult, error) {
	b.record(fakeCall{Op: op, Coll: coll, Filter: filter, Update: update, Upsert: upsert})
	if b.err != nil {
		return nil, b.err
	}
	if b.update == nil {
		return &BackendUpdateResult{}, nil
	}
	res := *b.update
	return &res, nil
}

func (b *fakeBackend) DeleteOne(_ context.Context, coll string, filter M) (int64, error) {
	b.record(fakeCall{Op: OpDeleteOne, Coll: coll, Filter: filter})
	return b.deleted, b.err
}

func (b *fakeBackend) DeleteMany(_ context.Context, coll string, filter M) (int64, error) {
	b.record(fakeCall{Op: OpDeleteMany, Coll: coll, Filter: filter})
	return b.deleted, b.err
}

func (b *fakeBackend) Aggregate(_ context.Context, coll string, pipeline []M) ([]M, error) {
	b.record(fakeCall{Op: OpAggregate, Coll: coll, Pipeline: pipeline})
	if b.err != nil {
		return nil, b.err
	}
	out := make([]M, len(b.aggregate))
	for i, d := range b.aggregate {
		out[i] = maps.Clone(d)
	}
	return out, nil
}

// fakeClient is an in-memory Client handing out fakeBackends per database.
type fakeClient struct {
	mu          sync.Mutex
	cfg         ConnConfig
	backends    map[string]*fakeBackend
	pings       int
	disconnects int
	pingErr     error
}

func newFakeClient(cfg ConnConfig) *fakeClient {
	return &fakeClient{cfg: cfg, backends: make(map[string]*fakeBackend)}
}

func (c *fakeClient) Database(name string) Backend {
	return c.backend(name)
}

func (c *fakeClient) backend(name string) *fakeBackend {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.backends[name]
	if !ok {
		b = newFakeBackend(name)
		c.backends[name] = b
	}
	return b
}

func (c *fakeClient) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeClient) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return nil
}

// fakeDialer records every dial and returns fakeClients.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	err     error
}

func (d *fakeDialer) Dial(_ context.Context, cfg ConnConfig) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeClient(cfg)
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *fakeDialer) Clients() []*fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeClient(nil), d.clients...)
}

// newTestSession returns a session over a fresh fakeBackend.
func newTestSession() (*Session, *fakeBackend) {
	b := newFakeBackend("testdb")
	return newSession(b, defaultEnv()), b
}
