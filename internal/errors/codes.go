package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure surfaced by the tenancy core.
type Code string

const (
	// Tenant resolution and lifecycle
	CodeTenantNotFound  Code = "TENANT_NOT_FOUND"
	CodeTenantAmbiguous Code = "TENANT_AMBIGUOUS"
	CodeTenantSuspended Code = "TENANT_SUSPENDED"
	CodeTenantMismatch  Code = "TENANT_MISMATCH"

	// Scoped data access
	CodeEntityNotFound Code = "ENTITY_NOT_FOUND"

	// Request and operational failures
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInfrastructure  Code = "INFRASTRUCTURE"
	CodeInternal        Code = "INTERNAL"
)

// Error is a structured error with a stable code and optional context
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to an HTTP status code
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeTenantNotFound, CodeEntityNotFound:
		return http.StatusNotFound
	case CodeTenantAmbiguous, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeTenantSuspended:
		return http.StatusForbidden
	case CodeTenantMismatch:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new Error
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func TenantNotFound(identifier string) *Error {
	return New(CodeTenantNotFound, fmt.Sprintf("tenant not found: %s", identifier), nil).
		WithDetail("identifier", identifier)
}

func TenantAmbiguous(first, second string) *Error {
	return New(CodeTenantAmbiguous, fmt.Sprintf("conflicting tenant identifiers: %s, %s", first, second), nil).
		WithDetail("first", first).
		WithDetail("second", second)
}

func TenantSuspended(tenantID string) *Error {
	return New(CodeTenantSuspended, fmt.Sprintf("tenant suspended: %s", tenantID), nil).
		WithDetail("tenant_id", tenantID)
}

func TenantMismatch(operation, entityType string) *Error {
	return New(CodeTenantMismatch, fmt.Sprintf("%s rejected: entity tagged for another tenant", operation), nil).
		WithDetail("operation", operation).
		WithDetail("entity_type", entityType)
}

func EntityNotFound(entityType, id string) *Error {
	return New(CodeEntityNotFound, fmt.Sprintf("%s not found: %s", entityType, id), nil).
		WithDetail("entity_type", entityType).
		WithDetail("id", id)
}

func InvalidArgument(message string, cause error) *Error {
	return New(CodeInvalidArgument, message, cause)
}

func RateLimited(tenantID string) *Error {
	return New(CodeRateLimited, fmt.Sprintf("rate limit exceeded for tenant %s", tenantID), nil).
		WithDetail("tenant_id", tenantID)
}

func Infrastructure(message string, cause error) *Error {
	return New(CodeInfrastructure, message, cause)
}

func Internal(message string, cause error) *Error {
	return New(CodeInternal, message, cause)
}

// GetCode extracts the code from an error, walking wrapped causes.
// Errors that carry no code classify as internal.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// HTTPStatus maps any error to an HTTP status code
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
