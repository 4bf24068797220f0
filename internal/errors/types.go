// Package errors provides structured error types and handling utilities
// for the metric alert engine.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a specific error condition
type ErrorCode string

// Error codes for different types of failures
const (
	// Client errors (4xx)
	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"

	// Server errors (5xx)
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeExternalAPIError   ErrorCode = "EXTERNAL_API_ERROR"

	// Processing errors
	ErrCodeQueueFull ErrorCode = "QUEUE_FULL"
)

// ErrorCategory represents the type of error for handling strategy
type ErrorCategory string

const (
	// CategoryClientError represents caller mistakes (4xx HTTP errors)
	CategoryClientError ErrorCategory = "CLIENT_ERROR"
	// CategoryServerError represents our system errors (5xx HTTP errors)
	CategoryServerError ErrorCategory = "SERVER_ERROR"
	// CategoryExternalError represents failures of notification sinks
	CategoryExternalError ErrorCategory = "EXTERNAL_ERROR"
	// CategoryRetryableError represents errors that can be retried
	CategoryRetryableError ErrorCategory = "RETRYABLE_ERROR"
	// CategoryRateLimitError represents rate limiting errors
	CategoryRateLimitError ErrorCategory = "RATE_LIMIT_ERROR"
	// CategoryTimeoutError represents timeout related errors
	CategoryTimeoutError ErrorCategory = "TIMEOUT_ERROR"
)

// Severity levels for error classification
type Severity string

const (
	// SeverityLow represents minor issues with degraded functionality
	SeverityLow Severity = "LOW"
	// SeverityMedium represents significant issues with some functionality lost
	SeverityMedium Severity = "MEDIUM"
	// SeverityHigh represents major issues with primary functionality affected
	SeverityHigh Severity = "HIGH"
	// SeverityCritical represents system-wide issues with service unavailable
	SeverityCritical Severity = "CRITICAL"
)

// ServiceError represents a structured error with context
type ServiceError struct {
	Code      ErrorCode              `json:"code"`
	Category  ErrorCategory          `json:"category"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with wrapped errors
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error can be retried
func (e *ServiceError) IsRetryable() bool {
	return e.Category == CategoryRetryableError ||
		e.Category == CategoryTimeoutError ||
		e.Category == CategoryRateLimitError ||
		(e.Category == CategoryExternalError && e.Severity != SeverityCritical)
}

// IsClientError returns true if the error is caused by the caller
func (e *ServiceError) IsClientError() bool {
	return e.Category == CategoryClientError
}

// HTTPStatusCode returns the appropriate HTTP status code for the error
func (e *ServiceError) HTTPStatusCode() int {
	switch e.Code {
	case ErrCodeInvalidRequest, ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeServiceUnavailable, ErrCodeQueueFull:
		return http.StatusServiceUnavailable
	case ErrCodeExternalAPIError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBuilder helps construct ServiceError instances
type ErrorBuilder struct {
	error *ServiceError
}

// NewError creates a new ErrorBuilder
func NewError(code ErrorCode) *ErrorBuilder {
	return &ErrorBuilder{
		error: &ServiceError{
			Code:      code,
			Timestamp: time.Now(),
			Context:   make(map[string]interface{}),
		},
	}
}

// WithCategory sets the error category
func (b *ErrorBuilder) WithCategory(category ErrorCategory) *ErrorBuilder {
	b.error.Category = category
	return b
}

// WithSeverity sets the error severity
func (b *ErrorBuilder) WithSeverity(severity Severity) *ErrorBuilder {
	b.error.Severity = severity
	return b
}

// WithMessage sets the error message
func (b *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	b.error.Message = message
	return b
}

// WithDetails sets additional error details
func (b *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	b.error.Details = details
	return b
}

// WithCause sets the underlying cause
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.error.Cause = cause
	return b
}

// WithContext adds context information
func (b *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	if b.error.Context == nil {
		b.error.Context = make(map[string]interface{})
	}
	b.error.Context[key] = value
	return b
}

// Build returns the constructed ServiceError
func (b *ErrorBuilder) Build() *ServiceError {
	if b.error.Category == "" {
		b.error.Category = getDefaultCategory(b.error.Code)
	}
	if b.error.Severity == "" {
		b.error.Severity = getDefaultSeverity(b.error.Code)
	}
	return b.error
}

// ErrorResponse represents the JSON response format for API errors
type ErrorResponse struct {
	Error     ErrorCode              `json:"error"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToErrorResponse converts ServiceError to ErrorResponse for API responses
func (e *ServiceError) ToErrorResponse() *ErrorResponse {
	resp := &ErrorResponse{
		Error:     e.Code,
		Message:   e.Message,
		Details:   e.Details,
		Timestamp: e.Timestamp,
	}
	if len(e.Context) > 0 {
		resp.Context = e.Context
	}
	return resp
}

// MarshalJSON implements json.Marshaler for structured logging
func (e *ServiceError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToErrorResponse())
}

// NotFound builds a NOT_FOUND error for the given resource kind and key
func NotFound(kind, key string) *ServiceError {
	return NewError(ErrCodeNotFound).
		WithMessage(fmt.Sprintf("%s not found: %s", kind, key)).
		WithContext(kind, key).
		Build()
}

// Conflict builds a CONFLICT error for a resource that already exists
func Conflict(kind, key string) *ServiceError {
	return NewError(ErrCodeConflict).
		WithMessage(fmt.Sprintf("%s already exists: %s", kind, key)).
		WithContext(kind, key).
		Build()
}

// Validation builds a VALIDATION_FAILED error for a single field
func Validation(field, message string) *ServiceError {
	return NewError(ErrCodeValidationFailed).
		WithMessage(fmt.Sprintf("invalid %s: %s", field, message)).
		WithContext("field", field).
		Build()
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a ServiceError
func CodeOf(err error) ErrorCode {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsNotFound reports whether err carries the NOT_FOUND code
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsConflict reports whether err carries the CONFLICT code
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

// AsServiceError converts any error into a ServiceError, wrapping unknown
// errors as INTERNAL_ERROR.
func AsServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return NewError(ErrCodeInternalError).
		WithMessage("internal error").
		WithCause(err).
		Build()
}

// getDefaultCategory returns default category for error code
func getDefaultCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeValidationFailed, ErrCodeNotFound, ErrCodeConflict:
		return CategoryClientError
	case ErrCodeRateLimited:
		return CategoryRateLimitError
	case ErrCodeTimeout:
		return CategoryTimeoutError
	case ErrCodeExternalAPIError:
		return CategoryExternalError
	case ErrCodeServiceUnavailable, ErrCodeQueueFull:
		return CategoryRetryableError
	default:
		return CategoryServerError
	}
}

// getDefaultSeverity returns default severity for error code
func getDefaultSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeNotFound, ErrCodeConflict:
		return SeverityLow
	case ErrCodeValidationFailed, ErrCodeRateLimited, ErrCodeTimeout:
		return SeverityMedium
	case ErrCodeServiceUnavailable, ErrCodeQueueFull, ErrCodeExternalAPIError:
		return SeverityHigh
	case ErrCodeInternalError:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}
