// Package apperr is the error taxonomy shared by the core packages and the
// HTTP layer. Errors carry a Kind (how the caller should react) and a stable
// Code (which rule was broken); errors.Is compares codes.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBusinessRule
	KindNotFound
	KindConflict
	KindUnauthorized
	KindSecurity
	KindDataAccess
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindSecurity:
		return "security"
	case KindDataAccess:
		return "data_access"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	// Status overrides the default HTTP status of the kind (security gates).
	Status int
	// Retryable marks connection-class data access failures.
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithField returns a copy of e naming the offending input field.
func (e *Error) WithField(field string) *Error {
	c := *e
	c.Field = field
	return &c
}

// WithMessage returns a copy of e with a more specific human message.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// Wrap returns a copy of e that wraps cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Validation(code, msg string) *Error   { return New(KindValidation, code, msg) }
func BusinessRule(code, msg string) *Error { return New(KindBusinessRule, code, msg) }
func NotFound(code, msg string) *Error     { return New(KindNotFound, code, msg) }
func Conflict(code, msg string) *Error     { return New(KindConflict, code, msg) }

func Unauthorized(code, msg string) *Error { return New(KindUnauthorized, code, msg) }

func Security(code, msg string, status int) *Error {
	e := New(KindSecurity, code, msg)
	e.Status = status
	return e
}

// Common data access codes. Constraint violations are never retried.
var (
	ErrDuplicateKey     = New(KindConflict, "duplicate_key", "duplicate entry - record already exists")
	ErrMissingReference = New(KindBusinessRule, "missing_reference", "referenced record does not exist")
	ErrDataAccess       = New(KindDataAccess, "data_access", "database error")
	ErrUnavailable      = &Error{Kind: KindDataAccess, Code: "db_unavailable", Message: "database unavailable", Retryable: true}
)

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}

// Status maps an error to the HTTP status a handler should answer with.
func Status(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation, KindBusinessRule:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindSecurity:
		return http.StatusForbidden
	case KindDataAccess:
		if e.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show to clients. Internal and data
// access failures never leak driver messages.
func PublicMessage(err error) string {
	e, ok := As(err)
	if !ok {
		return "server error"
	}
	switch e.Kind {
	case KindInternal:
		return "server error"
	case KindDataAccess:
		if e.Retryable {
			return "service temporarily unavailable"
		}
		return "server error"
	}
	return e.Message
}
