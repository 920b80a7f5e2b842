// Package errs defines the core's error vocabulary (spec §7).
//
// Validation and lookup errors are client-visible; StoreError wraps
// anything else and stays opaque to callers. Conflict (unique-violation)
// never surfaces here - it is recovered inside the context registry.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the collaborator wrapping the core
// (HTTP status mapping, logging verbosity, retry eligibility).
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindLookup     Kind = "LOOKUP"
	KindStore      Kind = "STORE"
)

// Code enumerates the error codes named in spec §7.
type Code string

const (
	CodeNoDimensionInContext Code = "NO_DIMENSION_IN_CONTEXT"
	CodeUnknownDimension     Code = "UNKNOWN_DIMENSION"
	CodeUnknownOverrideKey   Code = "UNKNOWN_OVERRIDE_KEY"
	CodeBadSchema            Code = "BAD_SCHEMA"
	CodeSchemaValidation     Code = "SCHEMA_VALIDATION"
	CodeBadPagination        Code = "BAD_PAGINATION"
	CodeMalformedPredicate   Code = "MALFORMED_PREDICATE"
	CodeNotFound             Code = "NOT_FOUND"
	CodeStoreError           Code = "STORE_ERROR"
	CodeKeyInUse             Code = "KEY_IN_USE"
)

// Error is the core's single error type. Callers type-assert or use
// errors.As to recover Code/Kind; Unwrap exposes the underlying cause
// (e.g. a *pq.Error) for logging without leaking it to clients.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func validation(code Code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NoDimensionInContext is returned when a condition's priority sums to zero.
func NoDimensionInContext() *Error {
	return validation(CodeNoDimensionInContext, "context references no known dimension")
}

// UnknownDimension is returned when a condition names a dimension
// that does not exist in the dimension registry.
func UnknownDimension(name string) *Error {
	return validation(CodeUnknownDimension, "unknown dimension %q", name)
}

// UnknownOverrideKey is returned when an override sets a key with no
// matching default-config entry.
func UnknownOverrideKey(key string) *Error {
	return validation(CodeUnknownOverrideKey, "unknown override key %q", key)
}

// BadSchema is returned when a key's registered schema fails to compile
// as Draft-7 JSON Schema.
func BadSchema(key string, cause error) *Error {
	e := validation(CodeBadSchema, "schema for key %q does not compile as draft-7", key)
	e.Cause = cause
	return e
}

// SchemaValidation is returned when an override value fails to validate
// against its key's schema. issues carries the validator's messages.
func SchemaValidation(key string, issues []string) *Error {
	return validation(CodeSchemaValidation, "value for key %q failed schema validation: %v", key, issues)
}

// BadPagination is returned for out-of-range page/size parameters.
func BadPagination(field string) *Error {
	return validation(CodeBadPagination, "invalid pagination parameter %q", field)
}

// MalformedPredicate is returned when a condition tree cannot be parsed
// into the predicate AST (spec §9: reject early, once, at the boundary).
func MalformedPredicate(cause error) *Error {
	e := validation(CodeMalformedPredicate, "condition is not a well-formed predicate")
	e.Cause = cause
	return e
}

// KeyInUse is returned when a delete targets a Dimension or
// DefaultConfig entry, or a priority change targets a Dimension, that is
// still referenced by at least one context.
func KeyInUse(entity, key string) *Error {
	return validation(CodeKeyInUse, "%s %q cannot be changed or deleted: still referenced by a context", entity, key)
}

// NotFound is returned when an entity lookup by id/name misses.
func NotFound(entity, id string) *Error {
	return &Error{
		Kind:    KindLookup,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %q not found", entity, id),
	}
}

// Store wraps any other store failure. It is opaque to external callers
// (500-class) but keeps the cause for logging.
func Store(op string, cause error) *Error {
	return &Error{
		Kind:    KindStore,
		Code:    CodeStoreError,
		Message: fmt.Sprintf("store operation %q failed", op),
		Cause:   cause,
	}
}

// Is reports whether err is an *Error with the given code, so callers
// can branch without importing the concrete type everywhere.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
