// Package apperr defines the single error taxonomy used across the
// policy-enforcement core. Every fallible operation in internal/* returns
// either nil or an *Error; callers at package boundaries wrap foreign errors
// with one of the constructors below so the dispatcher never has to
// type-switch on anything else.
package apperr

import "fmt"

// Code is a stable, wire-visible error identifier.
type Code string

const (
	Unauthorized              Code = "UNAUTHORIZED"
	Forbidden                 Code = "FORBIDDEN"
	PolicyBlocked             Code = "POLICY_BLOCKED"
	NotFound                  Code = "NOT_FOUND"
	InvalidInput              Code = "INVALID_INPUT"
	Conflict                  Code = "CONFLICT"
	LimitExceeded             Code = "LIMIT_EXCEEDED"
	NotSupported              Code = "NOT_SUPPORTED"
	WriteConfirmationRequired Code = "WRITE_CONFIRMATION_REQUIRED"
	InternalError             Code = "INTERNAL_ERROR"
)

// httpStatus mirrors the HTTP-style status each code carries, for sinks and
// transports that want one without re-deriving the mapping.
var httpStatus = map[Code]int{
	Unauthorized:              401,
	Forbidden:                 403,
	PolicyBlocked:             403,
	NotFound:                  404,
	InvalidInput:              400,
	Conflict:                  409,
	LimitExceeded:             413,
	NotSupported:              501,
	WriteConfirmationRequired: 409,
	InternalError:             500,
}

// jsonRPCCode mirrors the JSON-RPC 2.0 error code each taxonomy code maps
// onto per the dispatcher's wire contract.
var jsonRPCCode = map[Code]int{
	Unauthorized: -32001,
	Forbidden:    -32003,
	NotFound:     -32004,
	InvalidInput: -32602,
}

const defaultJSONRPCCode = -32000

// Error is the single typed error raised by core operations.
type Error struct {
	Code    Code
	Message string
	// Field, when non-empty, names the offending field for validation-style
	// errors (policy patch validation, argument decoding).
	Field string
	// Index, when non-negative, names the offending element of a batch
	// operation (write-batch prepare/commit).
	Index int
	cause error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the HTTP-style status code for e.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return 500
}

// JSONRPCCode returns the JSON-RPC error code for e, per the dispatcher's
// error-mapping table (§4.J): everything not explicitly listed maps to the
// generic -32000.
func (e *Error) JSONRPCCode() int {
	if c, ok := jsonRPCCode[e.Code]; ok {
		return c
	}
	return defaultJSONRPCCode
}

func new(code Code, index int, format string, args ...any) *Error {
	return &Error{Code: code, Index: index, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) *Error    { return new(Forbidden, -1, format, args...) }
func PolicyBlockedf(format string, args ...any) *Error { return new(PolicyBlocked, -1, format, args...) }
func NotFoundf(format string, args ...any) *Error      { return new(NotFound, -1, format, args...) }
func InvalidInputf(format string, args ...any) *Error  { return new(InvalidInput, -1, format, args...) }
func Conflictf(format string, args ...any) *Error      { return new(Conflict, -1, format, args...) }
func LimitExceededf(format string, args ...any) *Error { return new(LimitExceeded, -1, format, args...) }
func NotSupportedf(format string, args ...any) *Error  { return new(NotSupported, -1, format, args...) }

func WriteConfirmationRequiredf(format string, args ...any) *Error {
	return new(WriteConfirmationRequired, -1, format, args...)
}

// ConflictAt is Conflictf with a batch index attached (§4.G sub-op mismatch).
func ConflictAt(index int, format string, args ...any) *Error {
	return new(Conflict, index, format, args...)
}

// InvalidField is InvalidInputf with a field name attached, for
// validate_patch-style structured errors (§4.A).
func InvalidField(field, format string, args ...any) *Error {
	e := new(InvalidInput, -1, format, args...)
	e.Field = field
	return e
}

// Internal wraps a foreign error as INTERNAL_ERROR, preserving it via Unwrap.
func Internal(cause error) *Error {
	return &Error{Code: InternalError, Message: cause.Error(), Index: -1, cause: cause}
}

func Internalf(format string, args ...any) *Error {
	return new(InternalError, -1, format, args...)
}

// Wrap coerces any error into an *Error, defaulting to INTERNAL_ERROR when it
// isn't already one — the dispatcher boundary never forwards an untyped error.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return Internal(err)
}
