package core

import (
	"context"
	"time"
)

// Operation names reported in events, logs and spans.
const (
	OpInsertOne  = "insert_one"
	OpInsertMany = "insert_many"
	OpFindOne    = "find_one"
	OpFindMany   = "find_many"
	OpFindCount  = "find_count"
	OpUpdateOne  = "update_one"
	OpUpdateMany = "update_many"
	OpDeleteOne  = "delete_one"
	OpDeleteMany = "delete_many"
	OpAggregate  = "aggregate"
)

// OperationEvent contains information about one backend round-trip.
// This is passed to OperationHook callbacks for logging, metrics, or tracing.
type OperationEvent struct {
	// Database is the database name of the session's bind
	Database string
	// Collection is the collection the operation ran against
	Collection string
	// Operation is one of the Op* names
	Operation string
	// Duration is how long the round-trip took
	Duration time.Duration
	// Documents is the number of documents returned or affected
	Documents int64
	// Error is the domain error returned to the caller (nil on success)
	Error error
}

// OperationHook is a callback function invoked after each backend round-trip.
//
// Example:
//
//	reg, _ := fesdql.NewRegistry(cfg,
//	    fesdql.WithOperationHook(func(ctx context.Context, e fesdql.OperationEvent) {
//	        slog.Info("mongo", "op", e.Operation, "coll", e.Collection, "err", e.Error)
//	    }))
type OperationHook func(ctx context.Context, event OperationEvent)

// ChainHooks returns a hook that calls every non-nil hook in order.
func ChainHooks(hooks ...OperationHook) OperationHook {
	return func(ctx context.Context, event OperationEvent) {
		for _, h := range hooks {
			if h != nil {
				h(ctx, event)
			}
		}
	}
}

// invokeHook calls the operation hook if set.
func (s *Session) invokeHook(ctx context.Context, event OperationEvent) {
	if s.hook != nil {
		s.hook(ctx, event)
	}
}
