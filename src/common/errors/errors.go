// Package errors provides the structured error system shared by yfab commands.
// Every error carries a domain and a code so the CLI can classify failures
// (configuration, dependency, operation, precondition) and the HTTP control
// surface can map them to status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents a unique error code within a domain
type Code string

// Domain represents an error domain (e.g., "config", "precondition")
type Domain string

// Error domains. The first four mirror the failure classes of the tool:
// configuration problems abort before any command runs, dependency problems
// are warnings, operation failures carry tool output and precondition
// failures stop destructive work before it starts.
const (
	DomainConfig       Domain = "config"
	DomainDependency   Domain = "dependency"
	DomainOperation    Domain = "operation"
	DomainPrecondition Domain = "precondition"
	DomainStorage      Domain = "storage"
	DomainDatabase     Domain = "database"
	DomainAuth         Domain = "auth"
	DomainValidation   Domain = "validation"
	DomainInternal     Domain = "internal"
)

// Error represents a structured error with domain, code, and HTTP status
type Error struct {
	Domain Domain `json:"domain"`
	Code   Code   `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// HTTPStatus is used by the API layer only
	HTTPStatus int `json:"-"`

	cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is and errors.As support
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on domain and code so that errors derived with WithCause or
// WithMessage still compare equal to the predeclared value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Domain == t.Domain && e.Code == t.Code
}

func (e *Error) clone() *Error {
	c := *e
	return &c
}

// WithCause returns a copy of the error with the underlying cause attached
func (e *Error) WithCause(cause error) *Error {
	c := e.clone()
	c.cause = cause
	return c
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	c := e.clone()
	c.Message = message
	return c
}

// WithMessagef returns a copy of the error with a formatted message
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// New creates a new Error with the given parameters
func New(domain Domain, code Code, httpStatus int, message string) *Error {
	return &Error{
		Domain:     domain,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with an Error
func Wrap(err error, domain Domain, code Code, httpStatus int, message string) *Error {
	return &Error{
		Domain:     domain,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		cause:      err,
	}
}

// GetHTTPStatus returns the HTTP status code for an error, 500 for foreign errors.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// GetCode returns the error code if the error is an *Error, otherwise empty string
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetDomain returns the error domain if the error is an *Error, otherwise empty string
func GetDomain(err error) Domain {
	var e *Error
	if errors.As(err, &e) {
		return e.Domain
	}
	return ""
}

// Category returns the user-facing failure class of an error.
func Category(err error) string {
	switch GetDomain(err) {
	case DomainConfig:
		return "configuration error"
	case DomainDependency:
		return "dependency fetch error"
	case DomainOperation:
		return "operation failure"
	case DomainPrecondition:
		return "precondition error"
	case "":
		return "error"
	default:
		return string(GetDomain(err)) + " error"
	}
}

// IsWarning reports whether the error should be surfaced as a warning
// while the surrounding operation continues.
func IsWarning(err error) bool {
	return GetDomain(err) == DomainDependency
}

// Is checks if an error matches a target error (delegates to errors.Is)
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target (delegates to errors.As)
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
