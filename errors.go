// Package objectcore is the core runtime engine of a metadata-driven data
// access platform: a typed metadata registry, a serialisable query AST, a
// storage-driver contract, and the repository/dispatch pipeline that
// enforces permissions, tenancy, validation and lifecycle hooks uniformly
// over every operation.
package objectcore

import (
	"errors"
	"fmt"
)

// Code is a stable error classification, exposed to transports so they can
// map an engine error onto a protocol-specific status (see transport.HTTPStatus).
type Code string

// Error codes, matching spec §6's error-code -> HTTP mapping table.
const (
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeValidationError   Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeTenantIsolation   Code = "TENANT_ISOLATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     Code = "INTERNAL_ERROR"
	CodeDatabaseError     Code = "DATABASE_ERROR"
	CodeActionNotFound    Code = "ACTION_NOT_FOUND"
	CodeUnsupportedOp     Code = "UNSUPPORTED_OPERATOR"
)

// Sentinel errors. Wrap these in a *Error (or use errors.Is against them
// directly) so callers can classify failures without string matching.
var (
	ErrNotFound       = errors.New("objectcore: record not found")
	ErrForbidden      = errors.New("objectcore: operation forbidden")
	ErrValidation     = errors.New("objectcore: validation failed")
	ErrConflict       = errors.New("objectcore: conflict")
	ErrTenantIsolation = errors.New("objectcore: tenant isolation violation")
	ErrActionNotFound = errors.New("objectcore: action not found")
	ErrInvalidQuery   = errors.New("objectcore: invalid query")
	ErrUnsupportedOp  = errors.New("objectcore: unsupported operator")
)

// Error is the engine's uniform error envelope. Every error surfaced across
// a package boundary (metadata, driver, validation, hooks, repository,
// engine) is either an *Error or wraps one, so the transport layer can
// render spec §6's { error: { code, message, details } } response without
// per-kind special-casing.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("objectcore: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("objectcore: %s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the underlying cause and,
// for the well-known codes, to the matching sentinel.
func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	switch e.Code {
	case CodeNotFound:
		return ErrNotFound
	case CodeForbidden:
		return ErrForbidden
	case CodeValidationError:
		return ErrValidation
	case CodeConflict:
		return ErrConflict
	case CodeTenantIsolation:
		return ErrTenantIsolation
	case CodeActionNotFound:
		return ErrActionNotFound
	case CodeInvalidRequest:
		return ErrInvalidQuery
	case CodeUnsupportedOp:
		return ErrUnsupportedOp
	}
	return nil
}

// Is reports whether target is the Error's code's sentinel, letting
// errors.Is(err, objectcore.ErrNotFound) work against a *Error built with
// NewError(CodeNotFound, ...).
func (e *Error) Is(target error) bool {
	return e.Unwrap() == target
}

// NewError builds an *Error with no wrapped cause.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error classifying an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// WithDetails returns a copy of e carrying the given detail map (typically
// the per-field validation failure map, or a driver error category).
func (e *Error) WithDetails(details map[string]any) *Error {
	e2 := *e
	e2.Details = details
	return &e2
}

// NotFound returns a CodeNotFound error naming the object and id that could
// not be located.
func NotFound(object string, id any) *Error {
	return NewError(CodeNotFound, fmt.Sprintf("%s %v not found", object, id)).
		WithDetails(map[string]any{"object": object, "id": id})
}

// Forbidden returns a CodeForbidden error describing a denied permission.
func Forbidden(reason string) *Error {
	return NewError(CodeForbidden, reason)
}

// ActionNotFound returns a CodeActionNotFound error naming the missing
// action key.
func ActionNotFound(object, action string) *Error {
	return NewError(CodeActionNotFound, fmt.Sprintf("action %s:%s is not registered", object, action)).
		WithDetails(map[string]any{"object": object, "action": action})
}

// DriverErrorCategory classifies a failure raised by a storage driver (see
// driver.Error), surfaced to callers as an *Error with Code
// CodeDatabaseError or CodeConflict/CodeNotFound depending on category.
type DriverErrorCategory string

const (
	DriverErrConnection DriverErrorCategory = "connection"
	DriverErrConstraint DriverErrorCategory = "constraint"
	DriverErrNotFound   DriverErrorCategory = "not_found"
	DriverErrTimeout    DriverErrorCategory = "timeout"
	DriverErrOther      DriverErrorCategory = "other"
)

// FromDriverError classifies a driver-layer failure into the engine's
// Error taxonomy, so the repository pipeline never has to special-case
// individual driver implementations.
func FromDriverError(category DriverErrorCategory, err error) *Error {
	switch category {
	case DriverErrNotFound:
		return Wrap(CodeNotFound, "record not found", err)
	case DriverErrConstraint:
		return Wrap(CodeConflict, "constraint violation", err)
	default:
		return Wrap(CodeDatabaseError, "driver error", err)
	}
}

// IsNotFound reports whether err (or a wrapped cause) denotes a
// CodeNotFound failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden reports whether err (or a wrapped cause) denotes a
// CodeForbidden failure.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsValidation reports whether err (or a wrapped cause) denotes a
// CodeValidationError failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err (or a wrapped cause) denotes a
// CodeConflict failure.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
