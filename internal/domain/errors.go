package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput      = "INVALID_INPUT"
	ErrBadRequest        = "BAD_REQUEST"
	ErrUnknownDomain     = "UNKNOWN_DOMAIN"
	ErrDomainUnavailable = "DOMAIN_UNAVAILABLE"
	ErrReloadFailed      = "MODEL_RELOAD_FAILED"
	ErrNotFound          = "NOT_FOUND"
	ErrInternalServer    = "INTERNAL_SERVER_ERROR"
	ErrTimeout           = "REQUEST_TIMEOUT"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message string, details interface{}, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents a field-level input validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// InvalidInputError is returned by predict when validation rejects the record
type InvalidInputError struct {
	Domain string
	Result *ValidationResult
}

func (e *InvalidInputError) Error() string {
	if e.Result == nil || len(e.Result.Errors) == 0 {
		return fmt.Sprintf("invalid input for domain %s", e.Domain)
	}
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, fe := range e.Result.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return fmt.Sprintf("invalid input for domain %s: %s", e.Domain, strings.Join(msgs, "; "))
}

// UnknownDomainError is returned for unregistered or unloaded domains
type UnknownDomainError struct {
	Domain string
}

func (e *UnknownDomainError) Error() string {
	return fmt.Sprintf("unknown domain %q", e.Domain)
}

// PreconditionError signals that a stage was invoked out of order
type PreconditionError struct {
	Domain string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed for domain %s: %s", e.Domain, e.Reason)
}

// MissingFeatureError is returned when a model input cannot be produced
type MissingFeatureError struct {
	Domain  string
	Feature string
	Reason  string
}

func (e *MissingFeatureError) Error() string {
	return fmt.Sprintf("missing feature %s for domain %s: %s", e.Feature, e.Domain, e.Reason)
}

// BatchTooLargeError rejects batch requests over the configured limit
type BatchTooLargeError struct {
	Max int
	Got int
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("batch of %d records exceeds the limit of %d", e.Got, e.Max)
}

// ErrModelNotLoaded is the cause recorded for domains with no artifact loaded
var ErrModelNotLoaded = errors.New("model not loaded")

// ModelLoadError marks a domain unavailable after an artifact failed to load
type ModelLoadError struct {
	Domain string
	Path   string
	Err    error
}

func (e *ModelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("model for domain %s unavailable: %v", e.Domain, e.Err)
	}
	return fmt.Sprintf("failed to load model for domain %s from %s: %v", e.Domain, e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// ShapeMismatchError is returned when a vector does not fit the loaded model
type ShapeMismatchError struct {
	Domain   string
	Expected int
	Got      int
	Detail   string
}

func (e *ShapeMismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("shape mismatch for domain %s: %s", e.Domain, e.Detail)
	}
	return fmt.Sprintf("shape mismatch for domain %s: expected %d features, got %d", e.Domain, e.Expected, e.Got)
}

// ProviderTransientError is a retryable text-provider failure (503, transport, timeout)
type ProviderTransientError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderTransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transient error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transient error: %v", e.Provider, e.Err)
}

func (e *ProviderTransientError) Unwrap() error { return e.Err }

// ProviderFatalError is a non-retryable text-provider failure
type ProviderFatalError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderFatalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Provider, e.Err)
}

func (e *ProviderFatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable provider failure
func IsTransient(err error) bool {
	var transient *ProviderTransientError
	return errors.As(err, &transient)
}
