package api

import "fmt"

// ErrorKind represents the category of a classified bridge error.
type ErrorKind string

const (
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindNotFound       ErrorKind = "not_found"
	ErrorKindRateLimited    ErrorKind = "rate_limited"
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindContentFilter  ErrorKind = "content_filter"
	ErrorKindStreamProtocol ErrorKind = "stream_protocol"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// BridgeError is a classified upstream or transport failure. Every failure
// leaving the adapter is a *BridgeError; classification marks retryability
// but retry execution is the caller's responsibility.
type BridgeError struct {
	Kind    ErrorKind `json:"kind"`
	Status  int       `json:"status"`
	Message string    `json:"message"`

	// RequestID and Location carry upstream diagnostics when available.
	RequestID string `json:"request_id,omitempty"`
	Location  string `json:"location,omitempty"`

	Retryable bool `json:"retryable"`

	// Cause is the root cause this error was classified from, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (status %d, request %s)", e.Kind, e.Message, e.Status, e.RequestID)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
}

// Unwrap returns the root cause for errors.Is/As chains.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// RetryableStatus reports whether an HTTP-style status code is considered
// retryable: 408 (timeout), 409 (conflict), 429 (rate limit), and the
// entire 5xx range.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 409, 429:
		return true
	}
	return status >= 500 && status <= 599
}

// NewAuthenticationError creates a non-retryable authentication failure.
func NewAuthenticationError(status int, message string) *BridgeError {
	return &BridgeError{
		Kind:    ErrorKindAuthentication,
		Status:  status,
		Message: message,
	}
}

// NewNotFoundError creates a non-retryable resource-not-found failure.
func NewNotFoundError(message string) *BridgeError {
	return &BridgeError{
		Kind:    ErrorKindNotFound,
		Status:  404,
		Message: message,
	}
}

// NewRateLimitError creates a retryable rate-limit failure.
func NewRateLimitError(message string) *BridgeError {
	return &BridgeError{
		Kind:      ErrorKindRateLimited,
		Status:    429,
		Message:   message,
		Retryable: true,
	}
}

// NewValidationError creates a non-retryable configuration or request
// validation failure.
func NewValidationError(message string) *BridgeError {
	return &BridgeError{
		Kind:    ErrorKindValidation,
		Status:  400,
		Message: message,
	}
}

// NewNetworkError creates a retryable network or timeout failure.
func NewNetworkError(message string, cause error) *BridgeError {
	return &BridgeError{
		Kind:      ErrorKindNetwork,
		Status:    503,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewContentFilterError creates a non-retryable content-safety rejection.
func NewContentFilterError(message string) *BridgeError {
	return &BridgeError{
		Kind:    ErrorKindContentFilter,
		Status:  400,
		Message: message,
	}
}

// NewStreamProtocolError creates a non-retryable stream consumption or
// protocol failure.
func NewStreamProtocolError(message string, cause error) *BridgeError {
	return &BridgeError{
		Kind:    ErrorKindStreamProtocol,
		Status:  500,
		Message: message,
		Cause:   cause,
	}
}

// NewUnknownError creates the fallback classification: non-retryable,
// status 500.
func NewUnknownError(message string, cause error) *BridgeError {
	return &BridgeError{
		Kind:    ErrorKindUnknown,
		Status:  500,
		Message: message,
		Cause:   cause,
	}
}
