package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/coregx/fesdql/internal/logger"
)

// AuditLevel selects which operations the Auditor records.
type AuditLevel int

const (
	// AuditNone records nothing.
	AuditNone AuditLevel = iota
	// AuditWrites records inserts, updates and deletes.
	AuditWrites
	// AuditReads records reads (find, count, aggregate) as well as writes.
	AuditReads
	// AuditAll records every operation.
	AuditAll
)

// Actor identifies who issued an operation. It travels in the request context.
type Actor struct {
	User      string `json:"user,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type actorKey struct{}

// ActorFrom returns the Actor stored in ctx, or the zero Actor.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

func withActor(ctx context.Context, update func(*Actor)) context.Context {
	a := ActorFrom(ctx)
	update(&a)
	return context.WithValue(ctx, actorKey{}, a)
}

// WithUser records the acting user in ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return withActor(ctx, func(a *Actor) { a.User = user })
}

// WithClientIP records the client address in ctx.
func WithClientIP(ctx context.Context, clientIP string) context.Context {
	return withActor(ctx, func(a *Actor) { a.ClientIP = clientIP })
}

// WithRequestID records the request id in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withActor(ctx, func(a *Actor) { a.RequestID = requestID })
}

// GetUser returns the user recorded in ctx.
func GetUser(ctx context.Context) string { return ActorFrom(ctx).User }

// GetClientIP returns the client address recorded in ctx.
func GetClientIP(ctx context.Context) string { return ActorFrom(ctx).ClientIP }

// GetRequestID returns the request id recorded in ctx.
func GetRequestID(ctx context.Context) string { return ActorFrom(ctx).RequestID }

// AuditEvent is one audited document operation.
type AuditEvent struct {
	Actor
	Operation  string `json:"operation"`
	Collection string `json:"collection"`
	Documents  int64  `json:"documents"`
	// FilterHash is the SHA-256 of the filter; filter values are never logged.
	FilterHash string `json:"filter_hash,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// fields returns the event as logger key-value pairs. Empty optional values
// are left out.
func (e AuditEvent) fields() []any {
	kv := []any{
		"operation", e.Operation,
		"collection", e.Collection,
		"documents", e.Documents,
		"success", e.Success,
		"duration_ms", e.DurationMS,
	}
	for _, f := range [...]struct{ key, val string }{
		{"user", e.User},
		{"client_ip", e.ClientIP},
		{"request_id", e.RequestID},
		{"filter_hash", e.FilterHash},
		{"error", e.Error},
	} {
		if f.val != "" {
			kv = append(kv, f.key, f.val)
		}
	}
	return kv
}

// OperationRecord describes a finished operation handed to the auditor.
type OperationRecord struct {
	Operation  string
	Collection string
	Filter     any
	Documents  int64
	Err        error
	Duration   time.Duration
}

// Auditor writes an audit trail of document operations to a Logger.
type Auditor struct {
	logger logger.Logger
	level  AuditLevel
}

// NewAuditor creates an Auditor. A nil logger disables it.
func NewAuditor(log logger.Logger, level AuditLevel) *Auditor {
	return &Auditor{logger: log, level: level}
}

// LogOperation records rec if the audit level covers its operation.
// Successful operations are logged at Info, failed ones at Warn.
func (a *Auditor) LogOperation(ctx context.Context, rec OperationRecord) {
	if !a.covers(rec.Operation) {
		return
	}

	event := AuditEvent{
		Actor:      ActorFrom(ctx),
		Operation:  rec.Operation,
		Collection: rec.Collection,
		Documents:  rec.Documents,
		Success:    rec.Err == nil,
		DurationMS: rec.Duration.Milliseconds(),
	}
	if rec.Filter != nil {
		event.FilterHash = hashValue(rec.Filter)
	}
	if rec.Err != nil {
		event.Error = rec.Err.Error()
		a.logger.Warn("audit_event", event.fields()...)
		return
	}
	a.logger.Info("audit_event", event.fields()...)
}

// LogSecurityEvent records a rejected request, such as a blocked operator.
// It is logged at every level but AuditNone.
func (a *Auditor) LogSecurityEvent(ctx context.Context, eventType, collection string, err error) {
	if a.logger == nil || a.level == AuditNone {
		return
	}

	event := AuditEvent{
		Actor:      ActorFrom(ctx),
		Operation:  eventType,
		Collection: collection,
	}
	if err != nil {
		event.Error = err.Error()
	}
	a.logger.Warn("security_event", event.fields()...)
}

// covers reports whether operation is recorded at the audit level.
func (a *Auditor) covers(operation string) bool {
	if a.logger == nil {
		return false
	}
	switch a.level {
	case AuditWrites:
		return isWrite(operation)
	case AuditReads, AuditAll:
		return true
	default:
		return false
	}
}

// isWrite reports whether the operation modifies documents.
func isWrite(operation string) bool {
	switch operation {
	case "insert_one", "insert_many", "update_one", "update_many", "delete_one", "delete_many":
		return true
	default:
		return false
	}
}

// hashValue hashes the fmt rendering of v. fmt prints map keys sorted, so
// equal filters hash equally.
func hashValue(v any) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%v", v)
	return hex.EncodeToString(h.Sum(nil))
}
