package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Predefined errors returned by fesdql operations.
// Every error a caller sees matches one of them via errors.Is.
var (
	// ErrInvalidArgument is returned when a caller passes a malformed shape
	// (non-mapping document, empty document list, bad collection name, ...).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidIdentifier is returned when an id string cannot be translated to an ObjectID.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrMissingCollection is returned when a query is used before its collection is set.
	ErrMissingCollection = errors.New("query has no collection name")
	// ErrConflictingMode is returned when a query is switched from one operation mode to another.
	ErrConflictingMode = errors.New("query operation mode already set")
	// ErrDuplicateKey is returned when the backend reports a uniqueness violation.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidCollectionName is returned for collection names the backend rejects.
	ErrInvalidCollectionName = errors.New("invalid collection name")
	// ErrUnknownBind is returned when a bind name is not declared in the configuration.
	ErrUnknownBind = errors.New("unknown bind")
	// ErrNoDefaultBind is returned when the default bind was never opened.
	ErrNoDefaultBind = errors.New("default bind is not initialized")
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid configuration")
	// ErrBackend is returned for any other backend failure.
	ErrBackend = errors.New("backend error")
	// ErrRegistryClosed is returned when a closed registry is used.
	ErrRegistryClosed = errors.New("registry is closed")
)

// WrapError wraps an error with additional context message.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

// invalidArgument builds an error matching ErrInvalidArgument.
func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Error is the domain error returned for failed backend round-trips.
// It carries an HTTP-style status, a message table code and the localized text.
// Unwrap exposes only Kind: the raw driver error stays in Cause.
type Error struct {
	// Kind is one of ErrDuplicateKey, ErrInvalidCollectionName or ErrBackend.
	Kind error
	// Status is an HTTP status code suitable for a response.
	Status int
	// Code is the message table code.
	Code int
	// Message is the localized message for Code.
	Message string
	// Op is the session operation that failed, e.g. "insert_one".
	Op string
	// Collection is the collection the operation ran against.
	Collection string
	// Cause is the original backend error, kept for logging.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Collection, e.Message)
}

// Unwrap returns the error kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

// StatusCode returns the HTTP status carried by err, or 500 when err is not an *Error.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
