package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base interface for all application errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// NotFoundError represents a referenced entity that does not exist.
// Never retried.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int {
	return http.StatusNotFound
}

func (e *NotFoundError) Code() string {
	return "NOT_FOUND"
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InvalidStateError represents an operation attempted from a state that
// forbids it (e.g. starting an instance of a disabled workflow).
// Surfaced to the caller, never retried.
type InvalidStateError struct {
	Resource string
	State    string
	Action   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s in state '%s'", e.Action, e.Resource, e.State)
}

func (e *InvalidStateError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *InvalidStateError) Code() string {
	return "INVALID_STATE"
}

// NewInvalidStateError creates a new InvalidStateError
func NewInvalidStateError(resource, state, action string) *InvalidStateError {
	return &InvalidStateError{Resource: resource, State: state, Action: action}
}

// IllegalTransitionError represents an out-of-order or mismatched
// step/instance advancement. Surfaced to the caller, never retried.
type IllegalTransitionError struct {
	Message string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s", e.Message)
}

func (e *IllegalTransitionError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *IllegalTransitionError) Code() string {
	return "ILLEGAL_TRANSITION"
}

// NewIllegalTransitionError creates a new IllegalTransitionError
func NewIllegalTransitionError(format string, args ...interface{}) *IllegalTransitionError {
	return &IllegalTransitionError{Message: fmt.Sprintf(format, args...)}
}

// TransientStoreError represents store connectivity or contention failures.
// Retried with bounded backoff; surfaced as a temporary failure once retries
// are exhausted.
type TransientStoreError struct {
	Op    string
	Cause error
}

func (e *TransientStoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("transient store error during %s", e.Op)
}

func (e *TransientStoreError) HTTPStatus() int {
	return http.StatusServiceUnavailable
}

func (e *TransientStoreError) Code() string {
	return "TRANSIENT_STORE_ERROR"
}

func (e *TransientStoreError) Unwrap() error {
	return e.Cause
}

// NewTransientStoreError creates a new TransientStoreError
func NewTransientStoreError(op string, cause error) *TransientStoreError {
	return &TransientStoreError{Op: op, Cause: cause}
}

// ValidationError represents invalid input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *ValidationError) Code() string {
	return "VALIDATION_ERROR"
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InternalError represents unexpected server errors
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) HTTPStatus() int {
	return http.StatusInternalServerError
}

func (e *InternalError) Code() string {
	return "INTERNAL_ERROR"
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// Helper functions for error checking

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsInvalidState checks if an error is an InvalidStateError
func IsInvalidState(err error) bool {
	var invalidState *InvalidStateError
	return errors.As(err, &invalidState)
}

// IsIllegalTransition checks if an error is an IllegalTransitionError
func IsIllegalTransition(err error) bool {
	var illegal *IllegalTransitionError
	return errors.As(err, &illegal)
}

// IsTransient checks if an error is a TransientStoreError
func IsTransient(err error) bool {
	var transient *TransientStoreError
	return errors.As(err, &transient)
}

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// GetHTTPStatus returns the HTTP status code for an error
// Returns 500 if the error doesn't implement AppError
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
// Returns "UNKNOWN_ERROR" if the error doesn't implement AppError
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "UNKNOWN_ERROR"
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ToResponse converts an error to an ErrorResponse
func ToResponse(err error) ErrorResponse {
	return ErrorResponse{
		Code:    GetErrorCode(err),
		Message: err.Error(),
	}
}
