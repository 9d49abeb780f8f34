package core

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/coregx/fesdql/internal/logger"
	"github.com/coregx/fesdql/internal/security"
	"github.com/coregx/fesdql/internal/tracer"
)

// env is shared by every Session created from one Registry.
type env struct {
	messages   Messages
	useZh      bool
	maxPerPage int

	logger    logger.Logger
	sanitizer *logger.Sanitizer
	tracer    tracer.Tracer
	hook      OperationHook
	validator *security.Validator
	auditor   *security.Auditor
}

func defaultEnv() *env {
	return &env{
		messages:  DefaultMessages(),
		useZh:     true,
		logger:    &logger.NoopLogger{},
		sanitizer: logger.NewSanitizer(nil),
		tracer:    tracer.Noop{},
	}
}

// Session executes queries against one database. It is safe for concurrent use;
// the Query passed to each call is not.
type Session struct {
	backend Backend
	*env
}

func newSession(backend Backend, e *env) *Session {
	return &Session{backend: backend, env: e}
}

// UpdateResult reports the outcome of an update.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	// UpsertedID is the public id of an upserted document, empty when none was.
	UpsertedID string
}

// Database returns the name of the database the session is bound to.
func (s *Session) Database() string {
	return s.backend.Name()
}

// Query returns a new Query that carries the session's max-per-page setting.
func (s *Session) Query() *Query {
	return NewQuery(WithMaxPerPage(s.maxPerPage))
}

// Async returns the non-blocking view of the session.
func (s *Session) Async() *AsyncSession {
	return &AsyncSession{s: s}
}

// InsertOne inserts a single document and returns its public id.
func (s *Session) InsertOne(ctx context.Context, q *Query) (string, error) {
	p, err := s.render(q, OpInsertOne, ModeInsert)
	if err != nil {
		return "", err
	}
	if p.Many {
		return "", invalidArgument("%s expects a single document, got a list", OpInsertOne)
	}

	doc, err := prepareDocument(p.Documents[0])
	if err != nil {
		return "", err
	}
	if err := s.validate(ctx, p.Collection, doc); err != nil {
		return "", err
	}

	var id any
	err = s.roundTrip(ctx, call{op: OpInsertOne, collection: p.Collection, code: MsgInsertFailed},
		func(ctx context.Context) (int64, error) {
			var err error
			id, err = s.backend.InsertOne(ctx, p.Collection, doc)
			return 1, err
		})
	if err != nil {
		return "", err
	}
	return externalID(id), nil
}

// InsertMany inserts a non-empty list of documents and returns their public ids
// in input order.
func (s *Session) InsertMany(ctx context.Context, q *Query) ([]string, error) {
	p, err := s.render(q, OpInsertMany, ModeInsert)
	if err != nil {
		return nil, err
	}
	if !p.Many {
		return nil, invalidArgument("%s expects a list of documents", OpInsertMany)
	}
	if len(p.Documents) == 0 {
		return nil, invalidArgument("%s got an empty document list", OpInsertMany)
	}

	docs := make([]M, len(p.Documents))
	for i, d := range p.Documents {
		if docs[i], err = prepareDocument(d); err != nil {
			return nil, err
		}
		if err := s.validate(ctx, p.Collection, docs[i]); err != nil {
			return nil, err
		}
	}

	var ids []any
	err = s.roundTrip(ctx, call{op: OpInsertMany, collection: p.Collection, code: MsgInsertFailed},
		func(ctx context.Context) (int64, error) {
			var err error
			ids, err = s.backend.InsertMany(ctx, p.Collection, docs)
			return int64(len(ids)), err
		})
	if err != nil {
		return nil, err
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = externalID(id)
	}
	return out, nil
}

// FindOne returns the first matching document, or nil when nothing matches.
func (s *Session) FindOne(ctx context.Context, q *Query) (M, error) {
	p, filter, err := s.renderFilter(ctx, q, OpFindOne, ModeNone, ModeSelect)
	if err != nil {
		return nil, err
	}

	var doc M
	err = s.roundTrip(ctx, call{op: OpFindOne, collection: p.Collection, code: MsgFindOneFailed, statement: filter},
		func(ctx context.Context) (int64, error) {
			var err error
			doc, err = s.backend.FindOne(ctx, p.Collection, filter, p.Projection)
			if doc == nil {
				return 0, err
			}
			return 1, err
		})
	if err != nil {
		return nil, err
	}
	return restoreDocument(doc), nil
}

// FindMany returns matching documents, honoring sort, projection and the page window.
func (s *Session) FindMany(ctx context.Context, q *Query) ([]M, error) {
	p, filter, err := s.renderFilter(ctx, q, OpFindMany, ModeNone, ModeSelect)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, p.Collection, filter, FindOptions{
		Projection: p.Projection,
		Sort:       p.Sort,
		Limit:      p.Limit,
		Skip:       p.Offset,
	})
}

// FindAll returns every matching document, ignoring any page window.
func (s *Session) FindAll(ctx context.Context, q *Query) ([]M, error) {
	p, filter, err := s.renderFilter(ctx, q, OpFindMany, ModeNone, ModeSelect)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, p.Collection, filter, FindOptions{
		Projection: p.Projection,
		Sort:       p.Sort,
	})
}

func (s *Session) find(ctx context.Context, coll string, filter M, opts FindOptions) ([]M, error) {
	var docs []M
	err := s.roundTrip(ctx, call{op: OpFindMany, collection: coll, code: MsgFindManyFailed, statement: filter},
		func(ctx context.Context) (int64, error) {
			var err error
			docs, err = s.backend.Find(ctx, coll, filter, opts)
			return int64(len(docs)), err
		})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		restoreDocument(d)
	}
	return docs, nil
}

// FindCount returns the number of matching documents. The page window is ignored.
func (s *Session) FindCount(ctx context.Context, q *Query) (int64, error) {
	p, filter, err := s.renderFilter(ctx, q, OpFindCount, ModeNone, ModeSelect)
	if err != nil {
		return 0, err
	}
	return s.count(ctx, p.Collection, filter)
}

func (s *Session) count(ctx context.Context, coll string, filter M) (int64, error) {
	var n int64
	err := s.roundTrip(ctx, call{op: OpFindCount, collection: coll, code: MsgFindManyFailed, statement: filter},
		func(ctx context.Context) (int64, error) {
			var err error
			n, err = s.backend.Count(ctx, coll, filter)
			return n, err
		})
	return n, err
}

// FindPaginated fetches one page of matching documents. A query that was never
// paginated uses page DefaultPage and DefaultPerPage documents per page.
//
// The total is taken from the page itself when the first page is not full;
// otherwise a count round-trip is issued.
func (s *Session) FindPaginated(ctx context.Context, q *Query) (*Pagination, error) {
	p, err := s.render(q, OpFindMany, ModeNone, ModeSelect)
	if err != nil {
		return nil, err
	}

	page, perPage := p.Page, p.PerPage
	if !p.Paginated {
		page, perPage = DefaultPage, DefaultPerPage
	}

	return s.findPage(ctx, pageRequest{
		collection: p.Collection,
		filter:     p.Filter,
		projection: p.Projection,
		sort:       p.Sort,
		page:       page,
		perPage:    perPage,
		maxPerPage: p.MaxPerPage,
	})
}

type pageRequest struct {
	collection string
	filter     M
	projection map[string]bool
	sort       bson.D
	page       int
	perPage    int
	maxPerPage int
}

func (s *Session) findPage(ctx context.Context, r pageRequest) (*Pagination, error) {
	filter, err := s.normalize(ctx, r.collection, r.filter)
	if err != nil {
		return nil, err
	}

	page, perPage, limit, offset := pageWindow(r.page, r.perPage, r.maxPerPage)
	items, err := s.find(ctx, r.collection, filter, FindOptions{
		Projection: r.projection,
		Sort:       r.sort,
		Limit:      limit,
		Skip:       offset,
	})
	if err != nil {
		return nil, err
	}

	var total int64
	if page == 1 && len(items) < perPage {
		total = int64(len(items))
	} else if total, err = s.count(ctx, r.collection, filter); err != nil {
		return nil, err
	}

	return &Pagination{
		session:    s,
		Collection: r.collection,
		Page:       page,
		PerPage:    perPage,
		MaxPerPage: r.maxPerPage,
		Total:      total,
		Items:      items,
		Filter:     r.filter,
		Projection: r.projection,
		Sort:       r.sort,
	}, nil
}

// UpdateOne updates the first matching document.
func (s *Session) UpdateOne(ctx context.Context, q *Query) (*UpdateResult, error) {
	return s.update(ctx, q, OpUpdateOne, s.backend.UpdateOne)
}

// UpdateMany updates every matching document.
func (s *Session) UpdateMany(ctx context.Context, q *Query) (*UpdateResult, error) {
	return s.update(ctx, q, OpUpdateMany, s.backend.UpdateMany)
}

type updateFunc func(ctx context.Context, coll string, filter, update M, upsert bool) (*BackendUpdateResult, error)

func (s *Session) update(ctx context.Context, q *Query, op string, fn updateFunc) (*UpdateResult, error) {
	p, filter, err := s.renderFilter(ctx, q, op, ModeUpdate)
	if err != nil {
		return nil, err
	}
	update, err := normalizeUpdate(p.Update)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, p.Collection, update); err != nil {
		return nil, err
	}

	var res *BackendUpdateResult
	err = s.roundTrip(ctx, call{op: op, collection: p.Collection, code: MsgUpdateFailed, statement: filter},
		func(ctx context.Context) (int64, error) {
			var err error
			res, err = fn(ctx, p.Collection, filter, update, p.Upsert)
			if res == nil {
				return 0, err
			}
			return res.ModifiedCount, err
		})
	if err != nil {
		return nil, err
	}

	out := &UpdateResult{MatchedCount: res.MatchedCount, ModifiedCount: res.ModifiedCount}
	if res.UpsertedID != nil {
		out.UpsertedID = externalID(res.UpsertedID)
	}
	return out, nil
}

// DeleteOne deletes the first matching document and returns the deleted count.
func (s *Session) DeleteOne(ctx context.Context, q *Query) (int64, error) {
	return s.remove(ctx, q, OpDeleteOne, s.backend.DeleteOne)
}

// DeleteMany deletes every matching document and returns the deleted count.
func (s *Session) DeleteMany(ctx context.Context, q *Query) (int64, error) {
	return s.remove(ctx, q, OpDeleteMany, s.backend.DeleteMany)
}

func (s *Session) remove(ctx context.Context, q *Query, op string, fn func(context.Context, string, M) (int64, error)) (int64, error) {
	p, filter, err := s.renderFilter(ctx, q, op, ModeNone, ModeDelete)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.roundTrip(ctx, call{op: op, collection: p.Collection, code: MsgDeleteFailed, statement: filter},
		func(ctx context.Context) (int64, error) {
			var err error
			n, err = fn(ctx, p.Collection, filter)
			return n, err
		})
	return n, err
}

// Aggregate runs the query's pipeline. When the query was paginated with a
// limit, $skip and $limit stages for the page are appended to a copy of it.
func (s *Session) Aggregate(ctx context.Context, q *Query) ([]M, error) {
	p, err := s.render(q, OpAggregate, ModeAggregate)
	if err != nil {
		return nil, err
	}

	pipeline := p.Pipeline
	if p.Paginated && p.Limit != nil {
		pipeline = PagePipeline(pipeline, p.Page, p.PerPage)
	}

	if s.validator != nil {
		if err := s.validator.ValidatePipeline(pipeline); err != nil {
			return nil, s.rejected(ctx, p.Collection, err)
		}
	}

	var docs []M
	err = s.roundTrip(ctx, call{op: OpAggregate, collection: p.Collection, code: MsgAggregateFailed, statement: pipeline},
		func(ctx context.Context) (int64, error) {
			var err error
			docs, err = s.backend.Aggregate(ctx, p.Collection, pipeline)
			return int64(len(docs)), err
		})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		restoreDocument(d)
	}
	return docs, nil
}

// render renders q and checks that its mode is one op accepts.
func (s *Session) render(q *Query, op string, allowed ...Mode) (*Params, error) {
	if q == nil {
		return nil, invalidArgument("%s: query is nil", op)
	}
	p, err := q.Render()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(allowed, p.Mode) {
		return nil, fmt.Errorf("%w: %s cannot run a %s query", ErrConflictingMode, op, p.Mode)
	}
	return p, nil
}

// renderFilter renders q and normalizes and validates its filter.
func (s *Session) renderFilter(ctx context.Context, q *Query, op string, allowed ...Mode) (*Params, M, error) {
	p, err := s.render(q, op, allowed...)
	if err != nil {
		return nil, nil, err
	}
	filter, err := s.normalize(ctx, p.Collection, p.Filter)
	if err != nil {
		return nil, nil, err
	}
	return p, filter, nil
}

func (s *Session) normalize(ctx context.Context, coll string, filter M) (M, error) {
	out, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, coll, out); err != nil {
		return nil, err
	}
	return out, nil
}

// validate runs the operator validator, if any, over a filter, update or document.
func (s *Session) validate(ctx context.Context, coll string, doc M) error {
	if s.validator == nil {
		return nil
	}
	if err := s.validator.ValidateFilter(doc); err != nil {
		return s.rejected(ctx, coll, err)
	}
	return nil
}

func (s *Session) rejected(ctx context.Context, coll string, err error) error {
	s.logger.Warn("operator rejected",
		"collection", coll,
		"error", err,
	)
	if s.auditor != nil {
		s.auditor.LogSecurityEvent(ctx, "operator_blocked", coll, err)
	}
	return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
}

// call describes one backend round-trip.
type call struct {
	op         string
	collection string
	// code is the message code reported for generic failures
	code int
	// statement is the filter or pipeline, used for logs and spans
	statement any
}

// roundTrip performs fn with tracing, logging, auditing and hooks around it and
// maps a failure to a domain *Error. fn returns the number of documents returned
// or affected.
func (s *Session) roundTrip(ctx context.Context, c call, fn func(context.Context) (int64, error)) error {
	op := tracer.Operation{Name: c.op, Database: s.backend.Name(), Collection: c.collection}
	if tracer.Enabled(s.tracer) {
		op.Statement = s.statement(c.statement)
	}
	ctx, span := s.tracer.Start(ctx, op)

	start := time.Now()

	var n int64
	cause := checkCollectionName(c.collection)
	if cause == nil {
		n, cause = fn(ctx)
	}
	elapsed := time.Since(start)

	var err error
	if cause != nil {
		err = s.domainError(c, cause)
	}

	s.logResult(c, n, elapsed, cause)

	span.Finish(tracer.Result{Duration: elapsed, Documents: n, Err: err})

	if s.auditor != nil {
		s.auditor.LogOperation(ctx, security.OperationRecord{
			Operation:  c.op,
			Collection: c.collection,
			Filter:     c.statement,
			Documents:  n,
			Err:        err,
			Duration:   elapsed,
		})
	}

	s.invokeHook(ctx, OperationEvent{
		Database:   s.backend.Name(),
		Collection: c.collection,
		Operation:  c.op,
		Duration:   elapsed,
		Documents:  n,
		Error:      err,
	})

	return err
}

func (s *Session) statement(v any) string {
	if v == nil {
		return ""
	}
	return s.sanitizer.Format(v)
}

func (s *Session) logResult(c call, n int64, elapsed time.Duration, cause error) {
	if cause != nil {
		s.logger.Error("operation failed",
			"collection", c.collection,
			"operation", c.op,
			"filter", s.statement(c.statement),
			"duration_ms", elapsed.Milliseconds(),
			"database", s.backend.Name(),
			"error", cause,
		)
		return
	}

	s.logger.Debug("operation executed",
		"collection", c.collection,
		"operation", c.op,
		"duration_ms", elapsed.Milliseconds(),
		"documents", n,
		"database", s.backend.Name(),
	)
}

// domainError maps a backend failure to an *Error with a localized message.
func (s *Session) domainError(c call, cause error) *Error {
	e := &Error{
		Kind:       classifyBackendError(cause),
		Status:     http.StatusBadRequest,
		Code:       c.code,
		Op:         c.op,
		Collection: c.collection,
		Cause:      cause,
	}

	switch e.Kind {
	case ErrDuplicateKey:
		e.Status, e.Code = http.StatusConflict, MsgDuplicateKey
	case ErrInvalidCollectionName:
		e.Code = MsgInvalidCollectionName
	}

	e.Message = s.messages.Text(e.Code, s.useZh)
	return e
}

// checkCollectionName rejects names the server would refuse as a namespace.
func checkCollectionName(name string) error {
	if name == "" || strings.ContainsAny(name, "$\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidCollectionName, name)
	}
	return nil
}
