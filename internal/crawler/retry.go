package crawler

import (
	"context"
	"errors"
	"net/http"
)

// ShouldRetryError reports whether a transport-level failure is worth another
// attempt. Context cancellation and deadline errors never are.
func ShouldRetryError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// ShouldRetryStatus reports whether a response status is transient. The feed
// API answers 429 on throttling and the occasional 5xx under load.
func ShouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code/100 == 5
}

// ShouldInvalidateProxyStatus reports statuses that usually mean the current
// egress IP is burned rather than the request being malformed.
func ShouldInvalidateProxyStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusForbidden
}
