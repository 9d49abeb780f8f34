package core

import (
	"fmt"
	"maps"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/coregx/fesdql/internal/util"
)

// Default pagination values.
const (
	DefaultPage    = 1
	DefaultPerPage = 20
)

// Mode is the operation a Query was prepared for.
type Mode int

// Query modes. A query starts in ModeNone and is moved to exactly one other mode.
const (
	ModeNone Mode = iota
	ModeSelect
	ModeAggregate
	ModeInsert
	ModeUpdate
	ModeDelete
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeSelect:
		return "select"
	case ModeAggregate:
		return "aggregate"
	case ModeInsert:
		return "insert"
	case ModeUpdate:
		return "update"
	case ModeDelete:
		return "delete"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Direction is a sort direction.
type Direction int

// Sort directions.
const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// SortPair is one (field, direction) sort criterion.
type SortPair struct {
	Field     string
	Direction Direction
}

// Asc sorts field in ascending order.
func Asc(field string) SortPair { return SortPair{Field: field, Direction: Ascending} }

// Desc sorts field in descending order.
func Desc(field string) SortPair { return SortPair{Field: field, Direction: Descending} }

// Namer provides a collection name. Schema types implement it to be passed to
// Query.CollectionOf instead of a literal name.
type Namer interface {
	CollectionName() string
}

// Query accumulates filter, projection, sort, pagination and the payload of exactly
// one operation mode. A Query is not safe for concurrent use; build one per request.
//
// Builder methods never fail directly: the first error is recorded and returned by
// Render and by every Session method that consumes the query.
type Query struct {
	collection string
	filter     M
	projection map[string]bool
	sort       bson.D

	mode      Mode
	documents []M
	many      bool
	update    M
	upsert    bool
	pipeline  []M

	page       int
	perPage    int
	maxPerPage int
	limit      *int64
	offset     *int64
	paginated  bool

	err error
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithMaxPerPage caps the per-page value accepted by Paginate. Zero disables the cap.
func WithMaxPerPage(n int) QueryOption {
	return func(q *Query) {
		q.maxPerPage = n
	}
}

// NewQuery creates an empty query.
func NewQuery(opts ...QueryOption) *Query {
	q := &Query{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Err returns the first error recorded by a builder method.
func (q *Query) Err() error {
	return q.err
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Where merges conditions into the filter. The last write per key wins.
// Mapping values are operator maps ({"gt": 1}); the key "id" addresses the
// public identifier and is translated to the native key.
func (q *Query) Where(cond M) *Query {
	if q.filter == nil {
		q.filter = make(M, len(cond))
	}
	maps.Copy(q.filter, cond)
	return q
}

// Collection sets the collection by name.
func (q *Query) Collection(name string) *Query {
	if name == "" {
		return q.fail(invalidArgument("collection name is empty"))
	}
	q.collection = name
	return q
}

// CollectionOf sets the collection from a name provider.
func (q *Query) CollectionOf(n Namer) *Query {
	if n == nil {
		return q.fail(invalidArgument("collection name provider is nil"))
	}
	if rv := reflect.ValueOf(n); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return q.fail(invalidArgument("collection name provider is a nil %T", n))
	}
	name := n.CollectionName()
	if name == "" {
		return q.fail(invalidArgument("%T provides an empty collection name", n))
	}
	q.collection = name
	return q
}

// OrderBy appends sort criteria.
func (q *Query) OrderBy(pairs ...SortPair) *Query {
	for _, p := range pairs {
		if p.Direction != Ascending && p.Direction != Descending {
			return q.fail(invalidArgument("invalid sort direction %d for field %q", p.Direction, p.Field))
		}
		q.sort = append(q.sort, bson.E{Key: p.Field, Value: int(p.Direction)})
	}
	return q
}

// Exclude removes fields from returned documents.
func (q *Query) Exclude(fields ...string) *Query {
	if q.projection == nil {
		q.projection = make(map[string]bool, len(fields))
	}
	for _, f := range fields {
		q.projection[f] = false
	}
	return q
}

// Project merges an explicit projection map.
func (q *Query) Project(projection map[string]bool) *Query {
	if q.projection == nil {
		q.projection = make(map[string]bool, len(projection))
	}
	maps.Copy(q.projection, projection)
	return q
}

// Upsert makes update operations insert a document when nothing matches.
func (q *Query) Upsert(upsert bool) *Query {
	q.upsert = upsert
	return q
}

// Aggregation appends one pipeline stage.
func (q *Query) Aggregation(stage M) *Query {
	q.pipeline = append(q.pipeline, stage)
	return q
}

func (q *Query) setMode(m Mode) bool {
	if q.collection == "" {
		q.fail(fmt.Errorf("%w: cannot prepare %s query", ErrMissingCollection, m))
		return false
	}
	if q.mode != ModeNone && q.mode != m {
		q.fail(fmt.Errorf("%w: %s, cannot switch to %s", ErrConflictingMode, q.mode, m))
		return false
	}
	q.mode = m
	return true
}

// InsertQuery prepares an insert of one document (a mapping or a struct with bson
// tags) or many documents (a slice of them).
func (q *Query) InsertQuery(payload any) *Query {
	if !q.setMode(ModeInsert) {
		return q
	}
	docs, many, err := toDocuments(payload)
	if err != nil {
		return q.fail(err)
	}
	q.documents, q.many = docs, many
	return q
}

// UpdateQuery prepares an update with the given payload.
func (q *Query) UpdateQuery(payload M) *Query {
	if !q.setMode(ModeUpdate) {
		return q
	}
	q.update = payload
	return q
}

// DeleteQuery prepares a delete.
func (q *Query) DeleteQuery() *Query {
	q.setMode(ModeDelete)
	return q
}

// SelectQuery prepares a find, or an aggregation when aggregate is true.
func (q *Query) SelectQuery(aggregate bool) *Query {
	if aggregate {
		q.setMode(ModeAggregate)
	} else {
		q.setMode(ModeSelect)
	}
	return q
}

// Paginate sets the page window. perPage is capped by the max-per-page setting,
// page below 1 becomes 1, negative perPage becomes DefaultPerPage, and perPage 0
// means no limit.
func (q *Query) Paginate(page, perPage int) *Query {
	if q.collection == "" {
		return q.fail(fmt.Errorf("%w: cannot paginate", ErrMissingCollection))
	}
	q.page, q.perPage, q.limit, q.offset = pageWindow(page, perPage, q.maxPerPage)
	q.paginated = true
	return q
}

// pageWindow normalizes page values and derives limit and offset.
// limit and offset are nil in unlimited mode.
func pageWindow(page, perPage, maxPerPage int) (int, int, *int64, *int64) {
	if page < 1 {
		page = 1
	}
	if perPage < 0 {
		perPage = DefaultPerPage
	}
	// the default page size is capped too
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	if perPage == 0 {
		return page, perPage, nil, nil
	}
	limit := int64(perPage)
	offset := int64(page-1) * int64(perPage)
	return page, perPage, &limit, &offset
}

// Params is the rendered state of a Query. Only fields that belong to Mode are set.
type Params struct {
	Collection string
	Mode       Mode

	Filter     M
	Projection map[string]bool
	Sort       bson.D

	Documents []M
	Many      bool

	Update M
	Upsert bool

	Pipeline []M

	Page       int
	PerPage    int
	MaxPerPage int
	Paginated  bool
	Limit      *int64
	Offset     *int64
}

// Render returns the accumulated state.
func (q *Query) Render() (*Params, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.collection == "" {
		return nil, ErrMissingCollection
	}

	p := &Params{
		Collection: q.collection,
		Mode:       q.mode,
		MaxPerPage: q.maxPerPage,
	}

	switch q.mode {
	case ModeInsert:
		p.Documents, p.Many = q.documents, q.many
	case ModeUpdate:
		p.Filter, p.Update, p.Upsert = q.filter, q.update, q.upsert
	case ModeAggregate:
		p.Pipeline = q.pipeline
		p.setPage(q)
	case ModeDelete:
		p.Filter = q.filter
	default:
		p.Filter, p.Projection, p.Sort = q.filter, q.projection, q.sort
		p.setPage(q)
	}

	return p, nil
}

func (p *Params) setPage(q *Query) {
	p.Page, p.PerPage, p.Paginated = q.page, q.perPage, q.paginated
	p.Limit, p.Offset = q.limit, q.offset
}

// toDocuments accepts a single mapping or a slice of mappings.
func toDocuments(payload any) ([]M, bool, error) {
	switch v := payload.(type) {
	case M:
		if v == nil {
			return nil, false, invalidArgument("insert document is nil")
		}
		return []M{v}, false, nil
	case map[string]any:
		if v == nil {
			return nil, false, invalidArgument("insert document is nil")
		}
		return []M{v}, false, nil
	case []M:
		return checkDocuments(v)
	case []map[string]any:
		docs := make([]M, len(v))
		for i, d := range v {
			docs[i] = d
		}
		return checkDocuments(docs)
	case []any:
		docs := make([]M, len(v))
		for i, d := range v {
			doc, ok := asDocument(d)
			if !ok && util.IsStruct(d) {
				var err error
				if doc, err = structDocument(d); err != nil {
					return nil, false, err
				}
				ok = true
			}
			if !ok {
				return nil, false, invalidArgument("document %d is %T, not a mapping", i, d)
			}
			docs[i] = doc
		}
		return checkDocuments(docs)
	default:
		if util.IsStruct(payload) {
			doc, err := structDocument(payload)
			if err != nil {
				return nil, false, err
			}
			return []M{doc}, false, nil
		}
		return nil, false, invalidArgument("insert payload is %T, not a mapping or a list of mappings", payload)
	}
}

func checkDocuments(docs []M) ([]M, bool, error) {
	for i, d := range docs {
		if d == nil {
			return nil, false, invalidArgument("document %d is nil", i)
		}
	}
	return docs, true, nil
}

// structDocument converts a struct payload through the bson codec.
func structDocument(v any) (M, error) {
	doc, err := util.StructToDocument(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return doc, nil
}

// asDocument reports whether v is a mapping document.
func asDocument(v any) (M, bool) {
	switch d := v.(type) {
	case M:
		return d, d != nil
	case map[string]any:
		return d, d != nil
	default:
		return nil, false
	}
}
