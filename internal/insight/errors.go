package insight

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// APIError is a typed failure from the insight engine, carrying the
// canonical error detail and the retryable classification downstream
// retry logic consults.
type APIError struct {
	StatusCode int
	Endpoint   string
	Detail     ErrorDetail
}

func (e *APIError) Error() string {
	if e.Detail.ErrorCode != "" {
		return fmt.Sprintf("insight %s: %s (%s, status %d)", e.Endpoint, e.Detail.Message, e.Detail.ErrorCode, e.StatusCode)
	}
	return fmt.Sprintf("insight %s: status %d", e.Endpoint, e.StatusCode)
}

// Retryable reports whether the failure is transient. The engine's own
// flag wins; absent that, throttling and server-side statuses retry.
func (e *APIError) Retryable() bool {
	if e.Detail.Retryable {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable classifies any client error for the poller and submission
// paths. Breaker-open and transport failures are transient; fatal API
// errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}

	// Network-level failures (timeouts, refused connections) are transient
	return true
}

// ErrorCode extracts the upstream error code for job error metadata.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail.ErrorCode != "" {
		return apiErr.Detail.ErrorCode
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "circuit_open"
	}
	return "upstream_error"
}
