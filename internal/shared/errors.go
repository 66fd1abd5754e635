package shared

import (
	"errors"
	"fmt"
)

// Kind classifies settlement failures so transports can map them uniformly.
type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindNumberingExhausted    Kind = "NUMBERING_EXHAUSTED"
	KindConcurrencyConflict   Kind = "CONCURRENCY_CONFLICT"
	KindResourceUnavailable   Kind = "RESOURCE_UNAVAILABLE"
	KindExternalAuthorization Kind = "EXTERNAL_AUTHORIZATION"
	KindInvariantViolation    Kind = "INVARIANT_VIOLATION"
	KindNotFound              Kind = "NOT_FOUND"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrValidation matches any validation failure.
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	// ErrNumberingExhausted matches exhausted receipt numbering retries.
	ErrNumberingExhausted = &Error{Kind: KindNumberingExhausted, Message: "receipt numbering exhausted"}
	// ErrConcurrencyConflict matches lost races the caller may retry.
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict, Message: "concurrent modification"}
	// ErrResourceUnavailable matches missing collaborators such as an open cash register.
	ErrResourceUnavailable = &Error{Kind: KindResourceUnavailable, Message: "resource unavailable"}
	// ErrExternalAuthorization matches tax authority failures.
	ErrExternalAuthorization = &Error{Kind: KindExternalAuthorization, Message: "external authorization failed"}
	// ErrInvariantViolation matches illegal state transitions.
	ErrInvariantViolation = &Error{Kind: KindInvariantViolation, Message: "invariant violation"}
	// ErrInvalidCredentials indicates terminal authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Error is a classified domain error. The reason-less sentinels above match
// every error of their kind under errors.Is.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a target of the same kind whose reason is empty or equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

func newError(kind Kind, reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a VALIDATION error.
func Validation(reason, format string, args ...any) error {
	return newError(KindValidation, reason, format, args...)
}

// NumberingExhausted builds a NUMBERING_EXHAUSTED error.
func NumberingExhausted(format string, args ...any) error {
	return newError(KindNumberingExhausted, "numbering_exhausted", format, args...)
}

// ConcurrencyConflict builds a CONCURRENCY_CONFLICT error.
func ConcurrencyConflict(reason, format string, args ...any) error {
	return newError(KindConcurrencyConflict, reason, format, args...)
}

// ResourceUnavailable builds a RESOURCE_UNAVAILABLE error.
func ResourceUnavailable(reason, format string, args ...any) error {
	return newError(KindResourceUnavailable, reason, format, args...)
}

// ExternalAuthorization wraps a tax authority failure.
func ExternalAuthorization(err error, format string, args ...any) error {
	e := newError(KindExternalAuthorization, "authorization_failed", format, args...)
	e.Err = err
	return e
}

// InvariantViolation builds an INVARIANT_VIOLATION error.
func InvariantViolation(reason, format string, args ...any) error {
	return newError(KindInvariantViolation, reason, format, args...)
}

// NotFound builds a NOT_FOUND error for the named entity.
func NotFound(entity string, id int64) error {
	return newError(KindNotFound, entity+"_not_found", "%s %d not found", entity, id)
}

// AsError extracts the classified error from a chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
