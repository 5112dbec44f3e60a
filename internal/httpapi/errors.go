package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/llmrelay/llmrelay/internal/concurrency"
	"github.com/llmrelay/llmrelay/internal/router"
)

// dialect picks the error envelope shape for path: the Anthropic dialect
// for /v1/messages, OpenAI for everything else (spec.md §7 "User
// visibility").
func dialect(path string) string {
	if strings.HasPrefix(path, "/v1/messages") {
		return "anthropic"
	}
	return "openai"
}

// writeErrorEnvelope renders a dialect-appropriate error body and returns
// the status code written, for the caller's logging.
func writeErrorEnvelope(w http.ResponseWriter, path string, status int, errType, message, code string) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	var body any
	if dialect(path) == "anthropic" {
		body = map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    errType,
				"message": message,
				"code":    code,
			},
		}
	} else {
		body = map[string]any{
			"error": map[string]any{
				"message": message,
				"type":    errType,
				"code":    code,
				"param":   nil,
			},
		}
	}
	enc, _ := json.Marshal(body)
	w.Write(enc)
	return status
}

// writeMaterializedResponse replays the last backend's actual response body
// when the terminal error carries one, instead of synthesizing an error
// envelope: spec.md §4.4 step 2 ("if the last retryable error carried a
// response, return that response as-is") and §7 ("the last response, if
// any, is returned to the client ... otherwise 502"). Reports ok=false when
// err (or the RetryableError it wraps) never materialized a response, so
// the caller should fall back to writeEngineError.
func writeMaterializedResponse(w http.ResponseWriter, err error) (int, bool) {
	var retryable *router.RetryableError
	// StatusCode is only ever set on the status-based retry path (engine.go
	// reads and attaches the body before closing it there), never on a
	// connection-level failure — so it doubles as "a real response exists to
	// replay," even when that response body happened to be empty.
	if !errors.As(err, &retryable) || retryable.StatusCode == 0 {
		return 0, false
	}
	for k, v := range retryable.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(retryable.StatusCode)
	w.Write(retryable.Response)
	return retryable.StatusCode, true
}

// writeEngineError maps an error returned from the router/transport layer
// to the status-coded envelope spec.md §6.2 requires and writes it to w,
// returning the status actually sent.
func writeEngineError(w http.ResponseWriter, path string, err error) int {
	var exhausted *router.ErrAllBackendsExhausted
	if errors.As(err, &exhausted) {
		return writeErrorEnvelope(w, path, http.StatusBadGateway, "upstream_error", exhausted.Error(), "all_backends_failed")
	}

	var retryable *router.RetryableError
	if errors.As(err, &retryable) {
		status := retryable.StatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		return writeErrorEnvelope(w, path, status, "upstream_error", retryable.Error(), "upstream_retryable")
	}

	if errors.Is(err, concurrency.ErrQueueTimeout) || errors.Is(err, concurrency.ErrQueueFull) {
		return writeErrorEnvelope(w, path, http.StatusTooManyRequests, "rate_limit_error", err.Error(), "queue_timeout")
	}

	return writeErrorEnvelope(w, path, http.StatusBadGateway, "internal_error", err.Error(), "internal_error")
}

// writeModelNotFound renders the 400-wrapped "no backend matches" error
// (spec.md §6.2: reported as 404-equivalent but wrapped in a 400 in the
// OpenAI dialect).
func writeModelNotFound(w http.ResponseWriter, path, model string) int {
	return writeErrorEnvelope(w, path, http.StatusBadRequest, "invalid_request_error", "model not found: "+model, "model_not_found")
}

// writeInvalidRequest renders a generic 400 for malformed JSON or a missing
// required field.
func writeInvalidRequest(w http.ResponseWriter, path, message string) int {
	return writeErrorEnvelope(w, path, http.StatusBadRequest, "invalid_request_error", message, "invalid_request")
}

// writeClientDisconnect renders the 499 used when the client disconnects
// mid-body-read; nginx's convention, kept from the teacher.
func writeClientDisconnect(w http.ResponseWriter, path string) int {
	return writeErrorEnvelope(w, path, 499, "invalid_request_error", "client disconnected", "client_disconnect")
}
