package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError represents an API error with HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryableAPIError returns true if the API error has a retryable status code.
func IsRetryableAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// IsRetryableError checks if an error is transient and worth retrying.
// Typed checks via errors.Is/errors.As come first; the string fallback
// only covers untyped errors surfaced by third-party SDKs.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// A cancelled context is a caller decision, never a transient fault.
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if IsRetryableAPIError(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"rate limit",
		"resource_exhausted",
		"unavailable",
		"eof",
		"tls handshake",
		"no such host",
		"connection refused",
		"connection reset",
		"timeout",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}
