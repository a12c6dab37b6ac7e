package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	// ErrorTypeConfiguration covers invalid provider/rule fields and
	// "nothing to route to" conditions. Never retried.
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeUpstream covers timeouts, non-success responses and
	// transport errors from a provider. Recorded as a sample and drives
	// failover; only surfaces to the caller once all candidates exhaust.
	ErrorTypeUpstream ErrorType = "upstream"

	// ErrorTypeAggregate means every candidate provider failed.
	ErrorTypeAggregate ErrorType = "aggregate"

	// ErrorTypeStorage means the registry or history store is unavailable.
	// Fatal for the request path; background loops log and continue.
	ErrorTypeStorage ErrorType = "storage"

	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeValidation ErrorType = "validation"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Configuration errors
	ErrNoEnabledProviders = NewDomainError(ErrorTypeConfiguration, "no enabled providers configured", nil)
	ErrInvalidProvider    = NewDomainError(ErrorTypeConfiguration, "invalid provider configuration", nil)
	ErrInvalidAlertRule   = NewDomainError(ErrorTypeConfiguration, "invalid alert rule configuration", nil)
	ErrUnknownMode        = NewDomainError(ErrorTypeConfiguration, "unknown optimization mode", nil)

	// ErrAllProvidersFailed is the aggregate category sentinel. The
	// failover executor returns its own error carrying the per-provider
	// reasons; errors.Is against this sentinel identifies it.
	ErrAllProvidersFailed = NewDomainError(ErrorTypeAggregate, "all candidate providers failed", nil)

	// Upstream errors
	ErrUpstreamTimeout = NewDomainError(ErrorTypeUpstream, "upstream call timed out", nil)
	ErrUpstreamStatus  = NewDomainError(ErrorTypeUpstream, "upstream returned non-success status", nil)

	// Not found / validation
	ErrProviderNotFound = NewDomainError(ErrorTypeNotFound, "provider not found", nil)
	ErrRuleNotFound     = NewDomainError(ErrorTypeNotFound, "alert rule not found", nil)
	ErrInvalidInput     = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// Storage errors
	ErrStorageUnavailable = NewDomainError(ErrorTypeStorage, "storage unavailable", nil)
)

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return GetErrorType(err) == ErrorTypeConfiguration
}

// IsUpstreamError checks if an error is an upstream failure
func IsUpstreamError(err error) bool {
	return GetErrorType(err) == ErrorTypeUpstream
}

// IsAggregateError checks if an error means all candidates failed
func IsAggregateError(err error) bool {
	return GetErrorType(err) == ErrorTypeAggregate || errors.Is(err, ErrAllProvidersFailed)
}

// IsStorageError checks if an error is a storage error
func IsStorageError(err error) bool {
	return GetErrorType(err) == ErrorTypeStorage
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapStorage wraps an error as a storage error
func WrapStorage(message string, err error) error {
	return NewDomainError(ErrorTypeStorage, message, err)
}

// WrapUpstream wraps an error as an upstream failure
func WrapUpstream(message string, err error) error {
	return NewDomainError(ErrorTypeUpstream, message, err)
}
