// Package errors defines the structured application error used across the
// ingest pipeline, with typed constructors so callers can map failures to
// HTTP statuses without string matching.
package errors

import (
	"fmt"
	"strings"
)

// ErrorType classifies an application error.
type ErrorType string

const (
	// ErrTypeAuth represents bearer-token authentication failures.
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeSignature represents webhook signature verification failures.
	ErrTypeSignature ErrorType = "signature"
	// ErrTypeValidation represents payload or parameter validation errors.
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents configuration errors.
	ErrTypeConfig ErrorType = "config"
	// ErrTypeHydration represents provider-API hydration failures. Always
	// recovered locally; never surfaces as a request failure.
	ErrTypeHydration ErrorType = "hydration"
	// ErrTypePersistence represents archive or daily-store write failures.
	ErrTypePersistence ErrorType = "persistence"
	// ErrTypeNotFound represents missing resources.
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeTimeout represents timed-out operations.
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeInternal represents unexpected internal errors.
	ErrTypeInternal ErrorType = "internal"
)

// AppError is a structured application error.
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}
	if len(e.Context) > 0 {
		ctx := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			ctx = append(ctx, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(ctx, ", ")))
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error { return e.Cause }

// WithContext attaches a context value to the error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// AuthError creates an authentication error.
func AuthError(msg string) *AppError {
	return &AppError{Type: ErrTypeAuth, Message: msg}
}

// SignatureError creates a signature verification error.
func SignatureError(msg string) *AppError {
	return &AppError{Type: ErrTypeSignature, Message: msg}
}

// ValidationError creates a validation error.
func ValidationError(msg string) *AppError {
	return &AppError{Type: ErrTypeValidation, Message: msg}
}

// ConfigError creates a configuration error.
func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

// HydrationError creates a hydration error wrapping the fetch failure.
func HydrationError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeHydration, Message: msg, Cause: cause}
}

// PersistenceError creates a persistence error wrapping the write failure.
func PersistenceError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypePersistence, Message: msg, Cause: cause}
}

// NotFoundError creates a not-found error for the named resource.
func NotFoundError(resource string) *AppError {
	return &AppError{Type: ErrTypeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// TimeoutError creates a timeout error for the named operation.
func TimeoutError(operation string) *AppError {
	return &AppError{Type: ErrTypeTimeout, Message: fmt.Sprintf("timeout during %s", operation)}
}

// InternalError creates an internal error wrapping the cause.
func InternalError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeInternal, Message: msg, Cause: cause}
}

// IsType checks whether err is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

// GetType returns err's type, or ErrTypeInternal for foreign errors.
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrTypeInternal
}

// IsRejection reports whether err should be answered with a 401 instead of a
// generic handler failure.
func IsRejection(err error) bool {
	t := GetType(err)
	return t == ErrTypeAuth || t == ErrTypeSignature
}
