// Package errors defines structured error types and error handling utilities for the API key service.
// Each error carries a stable code and the HTTP status it maps to at the transport layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/tspence/api-key-generator/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// ServiceError represents a structured error with additional metadata
type ServiceError interface {
	error

	// Code returns the machine-readable error code
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) ServiceError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) ServiceError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

// baseError is the internal implementation of ServiceError
type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Code returns the error code
func (e *baseError) Code() constants.ErrorCode {
	return e.code
}

// HTTPStatus returns the HTTP status code
func (e *baseError) HTTPStatus() int {
	return e.httpStatus
}

// Description returns the error description
func (e *baseError) Description() string {
	return e.description
}

// Message returns the message without the cause chain
func (e *baseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause error
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a ServiceError with the same code
func (e *baseError) Is(target error) bool {
	t, ok := target.(*baseError)
	if !ok {
		return false
	}
	return t.code == e.code
}

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) ServiceError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) ServiceError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all metadata
func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new ServiceError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) ServiceError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrInvalidKey creates an invalid_key error. The message is the parse or
// validation failure text reported to the caller.
func ErrInvalidKey(message string) ServiceError {
	return NewError(
		constants.ErrCodeInvalidKey,
		http.StatusUnauthorized,
		"The presented API key is malformed or could not be verified.",
		message,
	)
}

// ErrUnsupportedAlgorithm creates an unsupported_algorithm error
func ErrUnsupportedAlgorithm(kind interface{}) ServiceError {
	return NewError(
		constants.ErrCodeUnsupportedAlgorithm,
		http.StatusInternalServerError,
		"The configured hash algorithm has no implementation.",
		fmt.Sprintf("Unknown hash type %v", kind),
	).WithMetadata("hash_kind", fmt.Sprintf("%v", kind))
}

// ErrKeyPersistFailed creates a key_persist_failed error
func ErrKeyPersistFailed() ServiceError {
	return NewError(
		constants.ErrCodeKeyPersistFailed,
		http.StatusInternalServerError,
		"A newly generated key could not be stored.",
		"Unable to persist new API key in repository.",
	)
}

// ErrRepository creates a repository_error error
func ErrRepository(operation string, cause error) ServiceError {
	return NewError(
		constants.ErrCodeRepository,
		http.StatusServiceUnavailable,
		"The key repository is currently unavailable.",
		fmt.Sprintf("key repository %s failed", operation),
	).WithCause(cause).WithMetadata("operation", operation)
}

// ErrInvalidConfig creates an invalid_config error
func ErrInvalidConfig(message string) ServiceError {
	return NewError(
		constants.ErrCodeInvalidConfig,
		http.StatusInternalServerError,
		"The service configuration is invalid.",
		message,
	)
}

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) ServiceError {
	return NewError(
		constants.ErrCodeInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter or is otherwise malformed.",
		message,
	)
}

// ErrNotFound creates a not_found error
func ErrNotFound(resource string, id string) ServiceError {
	return NewError(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"The requested resource does not exist.",
		fmt.Sprintf("%s not found", resource),
	).WithMetadata("resource", resource).WithMetadata("resource_id", id)
}

// ErrRateLimited creates a rate_limited error
func ErrRateLimited(retryAfter time.Duration) ServiceError {
	return NewError(
		constants.ErrCodeRateLimited,
		http.StatusTooManyRequests,
		"Too many requests from this client.",
		"rate limit exceeded",
	).WithMetadata("retry_after_seconds", int(math.Ceil(retryAfter.Seconds())))
}

// ErrInternal creates an internal_error error
func ErrInternal(message string) ServiceError {
	return NewError(
		constants.ErrCodeInternal,
		http.StatusInternalServerError,
		"The server encountered an unexpected condition.",
		message,
	)
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// AsServiceError finds the first ServiceError in err's chain
func AsServiceError(err error) (ServiceError, bool) {
	var svcErr ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains a ServiceError with code
func HasCode(err error, code constants.ErrorCode) bool {
	if svcErr, ok := AsServiceError(err); ok {
		return svcErr.Code() == code
	}
	return false
}

// WrapError wraps a generic error into a ServiceError
func WrapError(err error, code constants.ErrorCode, message string) ServiceError {
	var httpStatus int

	switch code {
	case constants.ErrCodeInvalidRequest:
		httpStatus = http.StatusBadRequest
	case constants.ErrCodeInvalidKey:
		httpStatus = http.StatusUnauthorized
	case constants.ErrCodeNotFound:
		httpStatus = http.StatusNotFound
	case constants.ErrCodeRepository:
		httpStatus = http.StatusServiceUnavailable
	case constants.ErrCodeRateLimited:
		httpStatus = http.StatusTooManyRequests
	default:
		httpStatus = http.StatusInternalServerError
	}

	return NewError(code, httpStatus, message, message).WithCause(err)
}

// IsInvalidKey checks if an error is an invalid_key error
func IsInvalidKey(err error) bool {
	return HasCode(err, constants.ErrCodeInvalidKey)
}

// IsRepositoryError checks if an error is a repository_error error
func IsRepositoryError(err error) bool {
	return HasCode(err, constants.ErrCodeRepository)
}

// IsNotFoundError checks if an error is a not_found error
func IsNotFoundError(err error) bool {
	return HasCode(err, constants.ErrCodeNotFound)
}

// ShouldLogError determines if an error should be logged based on severity
func ShouldLogError(err error) bool {
	if svcErr, ok := AsServiceError(err); ok {
		return svcErr.HTTPStatus() >= 500
	}
	return true
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Message          string                 `json:"message,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts a ServiceError to an ErrorResponse. Causes are
// never exposed to callers.
func ToErrorResponse(err ServiceError) *ErrorResponse {
	resp := &ErrorResponse{
		Error:            string(err.Code()),
		ErrorDescription: err.Description(),
	}
	if b, ok := err.(*baseError); ok {
		resp.Message = b.message
	}
	if len(err.Metadata()) > 0 && err.HTTPStatus() < 500 {
		resp.Metadata = err.Metadata()
	}
	return resp
}

// ToGenericErrorResponse converts any error to an ErrorResponse
func ToGenericErrorResponse(err error) *ErrorResponse {
	if svcErr, ok := AsServiceError(err); ok {
		return ToErrorResponse(svcErr)
	}

	return &ErrorResponse{
		Error:            string(constants.ErrCodeInternal),
		ErrorDescription: "An unexpected error occurred",
	}
}

// StatusOf returns the HTTP status for err, defaulting to 500
func StatusOf(err error) int {
	if svcErr, ok := AsServiceError(err); ok {
		return svcErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsRateLimited checks if an error is a rate_limited error
func IsRateLimited(err error) bool {
	return HasCode(err, constants.ErrCodeRateLimited)
}

// IsUnsupportedAlgorithm checks if an error is an unsupported_algorithm error
func IsUnsupportedAlgorithm(err error) bool {
	return HasCode(err, constants.ErrCodeUnsupportedAlgorithm)
}

// IsKeyPersistFailed checks if an error is a key_persist_failed error
func IsKeyPersistFailed(err error) bool {
	return HasCode(err, constants.ErrCodeKeyPersistFailed)
}
