// Package fesdql integrates MongoDB with Go services: a connection registry keyed
// by bind name, a fluent query builder, sessions with CRUD and aggregation,
// pagination, localized error messages and field validation messages.
package fesdql

import (
	"context"

	"github.com/coregx/fesdql/internal/config"
	"github.com/coregx/fesdql/internal/core"
	"github.com/coregx/fesdql/internal/fields"
	"github.com/coregx/fesdql/internal/logger"
	"github.com/coregx/fesdql/internal/metrics"
	"github.com/coregx/fesdql/internal/security"
	"github.com/coregx/fesdql/internal/tracer"
)

type (
	// M is a document or a filter.
	M = core.M

	// Registry owns the clients and sessions of every bind.
	Registry = core.Registry
	// Option is a functional option for configuring a Registry.
	Option = core.Option
	// Config configures a Registry.
	Config = core.Config
	// BindConfig is the connection of one named bind.
	BindConfig = core.BindConfig
	// Message is one localized message table entry.
	Message = core.Message
	// Messages maps message codes to entries.
	Messages = core.Messages

	// Session executes queries against one database.
	Session = core.Session
	// AsyncSession is the non-blocking view of a Session.
	AsyncSession = core.AsyncSession
	// UpdateResult reports the outcome of an update.
	UpdateResult = core.UpdateResult
	// Pagination is one page of a find.
	Pagination = core.Pagination

	// Query accumulates the parameters of one operation.
	Query = core.Query
	// QueryOption configures a Query.
	QueryOption = core.QueryOption
	// Params is the rendered state of a Query.
	Params = core.Params
	// Mode is the operation a Query was prepared for.
	Mode = core.Mode
	// Direction is a sort direction.
	Direction = core.Direction
	// SortPair is one sort criterion.
	SortPair = core.SortPair
	// Namer provides a collection name.
	Namer = core.Namer
	// Schema names a collection.
	Schema = core.Schema

	// Error is the domain error of a failed backend round-trip.
	Error = core.Error

	// OperationEvent describes one backend round-trip.
	OperationEvent = core.OperationEvent
	// OperationHook is invoked after every backend round-trip.
	OperationHook = core.OperationHook

	// Backend is one database handle of the document store.
	Backend = core.Backend
	// Client is a pooled connection to one server.
	Client = core.Client
	// Dialer creates Clients.
	Dialer = core.Dialer
	// ConnConfig holds what is needed to dial one Client.
	ConnConfig = core.ConnConfig
	// FindOptions controls a cursor query.
	FindOptions = core.FindOptions
	// BackendUpdateResult is what the backend reports for an update.
	BackendUpdateResult = core.BackendUpdateResult

	// Logger is the structured logger used by sessions and the registry.
	Logger = logger.Logger
	// Sanitizer masks sensitive values in logged filters.
	Sanitizer = logger.Sanitizer
	// Tracer starts spans for backend round-trips.
	Tracer = tracer.Tracer
	// OperatorValidator rejects dangerous query operators.
	OperatorValidator = security.Validator
	// Auditor records operations for audit.
	Auditor = security.Auditor
	// AuditLevel selects what the Auditor records.
	AuditLevel = security.AuditLevel
	// MetricsCollector exports Prometheus metrics of operations.
	MetricsCollector = metrics.Collector
	// FieldValidator validates structs with localized messages.
	FieldValidator = fields.Validator
	// FieldErrors maps field names to messages.
	FieldErrors = fields.Errors
)

// Future is the pending result of one asynchronous round-trip.
type Future[T any] = core.Future[T]

// Go runs fn in a new goroutine and returns its future result.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	return core.Go(ctx, fn)
}

// Query modes.
const (
	ModeNone      = core.ModeNone
	ModeSelect    = core.ModeSelect
	ModeAggregate = core.ModeAggregate
	ModeInsert    = core.ModeInsert
	ModeUpdate    = core.ModeUpdate
	ModeDelete    = core.ModeDelete

	Ascending  = core.Ascending
	Descending = core.Descending

	DefaultPage    = core.DefaultPage
	DefaultPerPage = core.DefaultPerPage
)

// Audit levels.
const (
	AuditNone   = security.AuditNone
	AuditWrites = security.AuditWrites
	AuditReads  = security.AuditReads
	AuditAll    = security.AuditAll
)

// Errors.
var (
	ErrInvalidArgument       = core.ErrInvalidArgument
	ErrInvalidIdentifier     = core.ErrInvalidIdentifier
	ErrMissingCollection     = core.ErrMissingCollection
	ErrConflictingMode       = core.ErrConflictingMode
	ErrDuplicateKey          = core.ErrDuplicateKey
	ErrInvalidCollectionName = core.ErrInvalidCollectionName
	ErrUnknownBind           = core.ErrUnknownBind
	ErrNoDefaultBind         = core.ErrNoDefaultBind
	ErrConfig                = core.ErrConfig
	ErrBackend               = core.ErrBackend
	ErrRegistryClosed        = core.ErrRegistryClosed
)

// Re-export core functions.
var (
	NewRegistry           = core.NewRegistry
	DefaultConfig         = core.DefaultConfig
	DialMongo             = core.DialMongo
	WithLogger            = core.WithLogger
	WithSanitizer         = core.WithSanitizer
	WithTracer            = core.WithTracer
	WithOperationHook     = core.WithOperationHook
	WithDialer            = core.WithDialer
	WithHealthCheck       = core.WithHealthCheck
	WithOperatorValidator = core.WithOperatorValidator
	WithAuditor           = core.WithAuditor
	ChainHooks            = core.ChainHooks

	NewQuery       = core.NewQuery
	WithMaxPerPage = core.WithMaxPerPage
	PagePipeline   = core.PagePipeline
	NewSchema      = core.NewSchema
	GenSchema      = core.GenSchema

	ToInternal = core.ToInternal
	ToExternal = core.ToExternal

	DefaultMessages = core.DefaultMessages
	MergeMessages   = core.MergeMessages
	StatusCode      = core.StatusCode

	// Conditions and sort pairs
	Asc     = core.Asc
	Desc    = core.Desc
	Eq      = core.Eq
	Ne      = core.Ne
	Gt      = core.Gt
	Gte     = core.Gte
	Lt      = core.Lt
	Lte     = core.Lte
	In      = core.In
	Nin     = core.Nin
	Exists  = core.Exists
	Regex   = core.Regex
	Between = core.Between
)

// Re-export ambient constructors.
var (
	NewSlogAdapter       = logger.NewSlogAdapter
	NewZapAdapter        = logger.NewZapAdapter
	NewSanitizer         = logger.NewSanitizer
	NewOtelTracer        = tracer.NewOtelTracer
	NewOperatorValidator = security.NewValidator
	WithStrict           = security.WithStrict
	WithBlockedOperators = security.WithBlockedOperators
	NewAuditor           = security.NewAuditor
	WithUser             = security.WithUser
	WithClientIP         = security.WithClientIP
	WithRequestID        = security.WithRequestID
	NewMetrics           = metrics.NewCollector
	LoadConfig           = config.Load
	NewFieldValidator    = fields.New
)
