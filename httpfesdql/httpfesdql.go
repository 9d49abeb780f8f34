// Package httpfesdql connects a fesdql Registry to net/http servers.
package httpfesdql

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/coregx/fesdql"
)

// RequestIDHeader is the header whose value is recorded as the audit request id.
const RequestIDHeader = "X-Request-ID"

// ErrNoRegistry is returned when a request context carries no Registry.
var ErrNoRegistry = errors.New("fesdql registry is not installed in the request context")

type registryKey struct{}

// NewContext returns a copy of ctx carrying reg.
func NewContext(ctx context.Context, reg *fesdql.Registry) context.Context {
	return context.WithValue(ctx, registryKey{}, reg)
}

// FromContext returns the Registry stored in ctx.
func FromContext(ctx context.Context) (*fesdql.Registry, bool) {
	reg, ok := ctx.Value(registryKey{}).(*fesdql.Registry)
	return reg, ok && reg != nil
}

// Session returns the session of bind from the Registry stored in ctx.
// The empty bind is the default one.
func Session(ctx context.Context, bind string) (*fesdql.Session, error) {
	reg, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoRegistry
	}
	return reg.GetSession(ctx, bind)
}

// Middleware stores reg in every request context together with the client
// address and request id used by the auditor.
func Middleware(reg *fesdql.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(RequestContext(r.Context(), reg, ClientIP(r), r.Header.Get(RequestIDHeader))))
		})
	}
}

// RequestContext returns ctx with reg and the audit metadata of one request.
func RequestContext(ctx context.Context, reg *fesdql.Registry, clientIP, requestID string) context.Context {
	ctx = NewContext(ctx, reg)
	if clientIP != "" {
		ctx = fesdql.WithClientIP(ctx, clientIP)
	}
	if requestID != "" {
		ctx = fesdql.WithRequestID(ctx, requestID)
	}
	return ctx
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ErrorBody is the JSON body written for a failed request.
type ErrorBody struct {
	Code    int               `json:"code,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse returns the status and body describing err.
// Domain errors keep their status and message code, field errors become 400,
// invalid arguments 400 and everything else 500.
func ErrorResponse(err error) (int, ErrorBody) {
	var e *fesdql.Error
	if errors.As(err, &e) {
		return e.Status, ErrorBody{Code: e.Code, Message: e.Message}
	}

	var fe fesdql.FieldErrors
	if errors.As(err, &fe) {
		return http.StatusBadRequest, ErrorBody{Message: fe.Error(), Fields: fe}
	}

	switch {
	case errors.Is(err, fesdql.ErrInvalidArgument),
		errors.Is(err, fesdql.ErrConflictingMode),
		errors.Is(err, fesdql.ErrMissingCollection):
		return http.StatusBadRequest, ErrorBody{Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorBody{Message: http.StatusText(http.StatusInternalServerError)}
	}
}

// WriteError writes err as a JSON response.
func WriteError(w http.ResponseWriter, err error) {
	status, body := ErrorResponse(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Serve opens reg, serves srv until ctx is done and then shuts both down.
// The shutdown of srv is bounded by timeout.
func Serve(ctx context.Context, srv *http.Server, reg *fesdql.Registry, timeout time.Duration) error {
	if err := reg.Open(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		serveErr = srv.Shutdown(shutdownCtx)
	}
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return errors.Join(serveErr, reg.Close(closeCtx))
}
