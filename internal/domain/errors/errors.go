// Package errors provides domain-specific error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout            = "TIMEOUT"

	// ErrCodeRateLimited marks an attempt rejected by the sliding-window
	// rate limiter. Never retried.
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodeQuotaExceeded marks an attempt rejected because the tenant's
	// monthly AI allowance is exhausted. Never retried.
	ErrCodeQuotaExceeded = "QUOTA_EXCEEDED"
	// ErrCodeLockContention marks a failed lease acquisition. Retryable
	// by the caller, distinct from conversation-state errors.
	ErrCodeLockContention = "LOCK_CONTENTION"
	// ErrCodeStateConflict marks an outcome discarded because the
	// conversation changed owner mid-flight. Not customer-visible.
	ErrCodeStateConflict = "STATE_CONFLICT"
	// ErrCodeInvalidTransition marks a state-machine transition whose
	// guard rejected it.
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
)

// DomainError represents a domain-specific error.
type DomainError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, identifier string) *DomainError {
	return &DomainError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    identifier,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeValidation,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewUnauthorizedError creates a new unauthorized error.
func NewUnauthorizedError(message string) *DomainError {
	return &DomainError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeInternal,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeConflict,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusConflict,
	}
}

// NewServiceUnavailableError creates a new service unavailable error.
func NewServiceUnavailableError(service string, err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("%s is unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(operation string) *DomainError {
	return &DomainError{
		Code:       ErrCodeTimeout,
		Message:    fmt.Sprintf("%s timed out", operation),
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// NewRateLimitedError creates a rate-limited admission rejection.
func NewRateLimitedError(tenantID string) *DomainError {
	return &DomainError{
		Code:       ErrCodeRateLimited,
		Message:    "too many AI requests, please wait",
		Details:    tenantID,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewQuotaExceededError creates a quota-exhausted admission rejection.
func NewQuotaExceededError(tenantID string) *DomainError {
	return &DomainError{
		Code:       ErrCodeQuotaExceeded,
		Message:    "monthly AI response limit reached",
		Details:    tenantID,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewLockContentionError creates a lease acquisition failure. The caller
// may safely retry the whole operation.
func NewLockContentionError(resource string) *DomainError {
	return &DomainError{
		Code:       ErrCodeLockContention,
		Message:    "could not acquire lock, try again",
		Details:    resource,
		HTTPStatus: http.StatusConflict,
	}
}

// NewStateConflictError marks a result that must be discarded because the
// conversation is no longer AI-owned.
func NewStateConflictError(conversationID string) *DomainError {
	return &DomainError{
		Code:       ErrCodeStateConflict,
		Message:    "conversation owner changed",
		Details:    conversationID,
		HTTPStatus: http.StatusConflict,
	}
}

// NewInvalidTransitionError marks a transition rejected by its guard.
func NewInvalidTransitionError(from, to, reason string) *DomainError {
	return &DomainError{
		Code:       ErrCodeInvalidTransition,
		Message:    fmt.Sprintf("cannot transition from %s to %s", from, to),
		Details:    reason,
		HTTPStatus: http.StatusConflict,
	}
}

// IsDomainError checks if the error is a domain error.
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the domain error from an error.
func GetDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == ErrCodeNotFound
}

// IsQuotaExceeded checks if the error is a quota rejection.
func IsQuotaExceeded(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == ErrCodeQuotaExceeded
}

// IsLockContention checks if the error is a lease acquisition failure.
func IsLockContention(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == ErrCodeLockContention
}

// IsStateConflict checks if the error is a discarded-outcome conflict.
func IsStateConflict(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == ErrCodeStateConflict
}

// IsTransient reports whether a generation failure is safe to retry.
// Timeouts and upstream unavailability are transient; configuration and
// validation problems are fatal.
func IsTransient(err error) bool {
	domainErr, ok := GetDomainError(err)
	if !ok {
		// Unclassified errors are treated as transient so a flaky
		// provider hiccup gets its retry budget.
		return true
	}
	switch domainErr.Code {
	case ErrCodeTimeout, ErrCodeServiceUnavailable, ErrCodeInternal:
		return true
	}
	return false
}
