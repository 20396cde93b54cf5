package oracle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents different categories of oracle errors for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content errors.
	ErrorTypeEmptyResponse

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (too long, violates policy).
	ErrorTypeBadPrompt
	// ErrorTypeMalformed represents a reply that violates the expected JSON
	// contract. Treated as total oracle failure, never partial success.
	ErrorTypeMalformed
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeMalformed:
		return "malformed_response"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error is a classified oracle error.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("oracle %s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("oracle %s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error type warrants a retry.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// NewError creates a classified error.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// WrapError creates a classified error wrapping a cause.
func WrapError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// RetryConfig defines exponential backoff configuration for retry behavior.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Multiplier for exponential backoff
	Jitter        bool          // Add random jitter to prevent thundering herd
}

// DefaultRetryConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// retryConfigFor returns the retry budget for an error type. Rate limits get
// a longer leash than generic transient failures; non-retryable types get
// zero retries.
func retryConfigFor(t ErrorType) RetryConfig {
	cfg := DefaultRetryConfig
	switch t {
	case ErrorTypeRateLimit:
		cfg.MaxRetries = 5
		cfg.InitialDelay = time.Second
	case ErrorTypeTransient:
		cfg.MaxRetries = 3
	case ErrorTypeEmptyResponse:
		cfg.MaxRetries = 2
	default:
		cfg.MaxRetries = 0
	}
	return cfg
}

// Classify maps an arbitrary error to a classified *Error. Already-classified
// errors pass through; everything else is matched on message text, the same
// last-resort heuristic the vendor SDKs force on everyone.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var oracleErr *Error
	if errors.As(err, &oracleErr) {
		return oracleErr
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate") ||
		strings.Contains(errStr, "quota"):
		return WrapError(ErrorTypeRateLimit, "rate limited", err)
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "api key") || strings.Contains(errStr, "unauthorized"):
		return WrapError(ErrorTypeAuth, "authentication failed", err)
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "eof") || strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "temporary"):
		return WrapError(ErrorTypeTransient, "transient failure", err)
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid request") ||
		strings.Contains(errStr, "too long"):
		return WrapError(ErrorTypeBadPrompt, "bad prompt", err)
	default:
		return WrapError(ErrorTypeUnknown, "unclassified failure", err)
	}
}
