package remote

import (
	"context"
	"errors"
	"net"
	"strings"
)

// isTransientError checks if error is transient and should move on to the next converter
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	// Timeout errors
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// 5xx server errors and 429 rate limit are transient
	if code := statusOf(err); (code >= 500 && code < 600) || code == 429 {
		return true
	}

	// Network errors (connection issues, timeouts)
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "eof") {
		return true
	}

	return false
}

// isFatalError checks if error is fatal and no other converter should be tried
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return true
	}

	// HTTP 4xx errors (except 429)
	if code := statusOf(err); code >= 400 && code < 500 && code != 429 {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "empty payload") ||
		strings.Contains(errStr, "invalid format pair")
}

// classify returns a metric label for err
func classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case isTransientError(err):
		return "transient"
	case isFatalError(err):
		return "fatal"
	}
	return "unknown"
}
