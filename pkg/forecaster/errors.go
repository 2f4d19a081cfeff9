package forecaster

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
)

// ErrorType classifies forecast endpoint failures.
type ErrorType string

const (
	// ErrorTypeAuth covers rejected credentials (401/403). Not retryable.
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeEndpoint covers transport failures, timeouts and server-side
	// errors. Usually retryable.
	ErrorTypeEndpoint ErrorType = "endpoint"
	// ErrorTypeValidation covers responses that arrived but do not satisfy the
	// inference contract. Retrying returns the same payload.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeUnknown is the fallback classification.
	ErrorTypeUnknown ErrorType = "unknown"
)

// Error represents a structured forecast endpoint error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error, wrapped with the matching sentinel
	StatusCode int       // HTTP status code if applicable
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Endpoint != "" {
		// Host only. Inference URLs can carry signing material in path or query.
		parts = append(parts, fmt.Sprintf("endpoint=%s", endpointHost(e.Endpoint)))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// endpointHost reduces an endpoint URL to its host for log-safe error text.
func endpointHost(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing forecaster.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// sentinelFor maps an error type to the apperrors sentinel callers match with
// errors.Is. Validation failures mean the upstream answered with garbage;
// everything else means the upstream could not serve the request.
func sentinelFor(errType ErrorType) error {
	if errType == ErrorTypeValidation {
		return apperrors.ErrMalformedForecast
	}
	return apperrors.ErrUpstreamUnavailable
}

// NewError creates a new structured forecast error. The matching sentinel is
// woven into the cause chain so errors.Is keeps working across packages.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	if cause == nil {
		cause = sentinelFor(errType)
	} else {
		cause = fmt.Errorf("%w: %w", sentinelFor(errType), cause)
	}
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured forecast error with endpoint context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, endpoint string, statusCode int) *Error {
	err := NewError(errType, message, retryable, cause)
	err.Endpoint = endpoint
	err.StatusCode = statusCode
	return err
}

// ClassifyError categorizes an error and returns a structured Error.
// This consolidates error classification logic for consistent handling.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	// Check if already an *Error
	var fcErr *Error
	if errors.As(err, &fcErr) {
		return fcErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	// Extract HTTP status code from error string
	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 408, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	// Authentication errors (not retryable)
	if strings.Contains(errStr, "401") || strings.Contains(errStr, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden") {
		fcErr = NewError(ErrorTypeAuth, "authentication failed", false, err)
		fcErr.StatusCode = statusCode
		return fcErr
	}

	// Endpoint not found (not retryable without config change)
	if strings.Contains(errStr, "404") {
		fcErr = NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
		fcErr.StatusCode = statusCode
		return fcErr
	}

	// Connection errors (may be retryable)
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") {
		fcErr = NewError(ErrorTypeEndpoint, "connection failed", true, err)
		fcErr.StatusCode = statusCode
		return fcErr
	}

	// Timeout and deadline exceeded (retryable)
	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "context canceled") {
		fcErr = NewError(ErrorTypeEndpoint, "request timeout", true, err)
		fcErr.StatusCode = statusCode
		return fcErr
	}

	// Rate limiting and throttling (retryable after backoff)
	if strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "throttl") {
		fcErr = NewError(ErrorTypeEndpoint, "rate limited", true, err)
		fcErr.StatusCode = statusCode
		return fcErr
	}

	// Serverless endpoints answer with these while spinning up (retryable)
	if strings.Contains(lower, "model is loading") || strings.Contains(lower, "endpoint is scaling") {
		fcErr = NewError(ErrorTypeEndpoint, "endpoint warming up", true, err)
		fcErr.StatusCode = statusCode
		return fcErr
	}

	// 5xx server errors (retryable)
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") {
		fcErr = NewError(ErrorTypeEndpoint, "server error", true, err)
		fcErr.StatusCode = statusCode
		return fcErr
	}

	// Unknown error
	fcErr = NewError(ErrorTypeUnknown, "forecast request failed", false, err)
	fcErr.StatusCode = statusCode
	return fcErr
}

// classifyStatus builds a structured Error for a non-200 HTTP response.
func classifyStatus(statusCode int, body string, endpoint string) *Error {
	cause := fmt.Errorf("status %d: %s", statusCode, body)

	switch {
	case statusCode == 401 || statusCode == 403:
		return NewErrorWithContext(ErrorTypeAuth, "authentication failed", false, cause, endpoint, statusCode)
	case statusCode == 404:
		return NewErrorWithContext(ErrorTypeEndpoint, "endpoint not found", false, cause, endpoint, statusCode)
	case statusCode == 408 || statusCode == 429:
		return NewErrorWithContext(ErrorTypeEndpoint, "rate limited", true, cause, endpoint, statusCode)
	case statusCode >= 500:
		return NewErrorWithContext(ErrorTypeEndpoint, "server error", true, cause, endpoint, statusCode)
	default:
		return NewErrorWithContext(ErrorTypeUnknown, "unexpected response", false, cause, endpoint, statusCode)
	}
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var fcErr *Error
	if errors.As(err, &fcErr) {
		return fcErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var fcErr *Error
	if errors.As(err, &fcErr) {
		return fcErr.Type
	}
	return ErrorTypeUnknown
}
