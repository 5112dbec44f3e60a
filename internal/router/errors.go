package router

import (
	"fmt"
	"net/http"
)

// RetryableError marks a failure the router should retry against the next
// backend in the fallback chain (or the same backend again, within its own
// retry budget) rather than surface to the client immediately.
// Grounded on the original's BackendRetryableError distinction between
// retryable upstream failures and a client-facing fatal error.
//
// When the failure came with an actual upstream response (a retryable
// status code, not a connection error), Response and Header carry its
// materialized body and headers so that once the chain is exhausted the
// caller can replay the last backend's real response to the client
// instead of synthesizing an error envelope (spec.md §4.4/§7).
type RetryableError struct {
	Backend    string
	StatusCode int // 0 for connection-level failures (no response at all)
	Reason     string // "timeout", "connection_error", "status", or "inline_error:<type>"
	Err        error

	Response []byte
	Header   http.Header
}

func (e *RetryableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("router: %s: backend %q returned retryable status %d", e.Reason, e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("router: %s: backend %q: %v", e.Reason, e.Backend, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// retryableStatus is the fixed set of upstream HTTP statuses the router
// treats as transient rather than a definitive failure.
var retryableStatus = map[int]bool{
	408: true,
	409: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryableStatus reports whether code is in the router's retryable set.
func IsRetryableStatus(code int) bool {
	return retryableStatus[code]
}
