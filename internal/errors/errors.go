package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation           ErrorType = "validation"
	ErrorTypeUploadFailed         ErrorType = "upload_failed"
	ErrorTypeConnectFailed        ErrorType = "connect_failed"
	ErrorTypeTimeout              ErrorType = "timeout"
	ErrorTypeStreamInterrupted    ErrorType = "stream_interrupted"
	ErrorTypeRemoteRejected       ErrorType = "remote_rejected"
	ErrorTypeRemoteWorkflowFailed ErrorType = "remote_workflow_failed"
	ErrorTypeMalformedResponse    ErrorType = "malformed_response"
	ErrorTypeIncompleteStream     ErrorType = "incomplete_stream"
	ErrorTypeNotFound             ErrorType = "not_found"
	ErrorTypeInternal             ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails returns a copy of the error carrying extra details
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewUploadError creates an error for a failed file upload to the workflow service
func NewUploadError(message string, cause error) *AppError {
	return newError(ErrorTypeUploadFailed, http.StatusBadGateway, message, cause)
}

// NewConnectError creates an error for a connection that could not be established or was reset
func NewConnectError(message string, cause error) *AppError {
	return newError(ErrorTypeConnectFailed, http.StatusBadGateway, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewStreamInterruptedError creates an error for a body lost after a 200 status line
func NewStreamInterruptedError(message string, cause error) *AppError {
	return newError(ErrorTypeStreamInterrupted, http.StatusBadGateway, message, cause)
}

// NewRemoteRejectedError creates an error for a non-200 workflow response
func NewRemoteRejectedError(message string, cause error) *AppError {
	return newError(ErrorTypeRemoteRejected, http.StatusBadGateway, message, cause)
}

// NewRemoteWorkflowFailedError creates an error for a workflow that reported failure
func NewRemoteWorkflowFailedError(message string, cause error) *AppError {
	return newError(ErrorTypeRemoteWorkflowFailed, http.StatusBadGateway, message, cause)
}

// NewMalformedResponseError creates an error for a 200 body that cannot be decoded
func NewMalformedResponseError(message string, cause error) *AppError {
	return newError(ErrorTypeMalformedResponse, http.StatusBadGateway, message, cause)
}

// NewIncompleteStreamError creates an error for a stream that ended without a terminal event
func NewIncompleteStreamError(message string, cause error) *AppError {
	return newError(ErrorTypeIncompleteStream, http.StatusBadGateway, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type, or ErrorTypeInternal for foreign errors
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsRetryable reports whether a workflow call that failed with err may be attempted again.
// Only network-class failures qualify; anything the remote side answered is final.
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeConnectFailed, ErrorTypeTimeout, ErrorTypeStreamInterrupted:
		return true
	default:
		return false
	}
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
