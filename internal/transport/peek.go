// Package transport provides the upstream HTTP client, the peek of a
// streaming response's opening bytes for an inline SSE error before any
// bytes are committed to the caller, and the relay of a streamed body
// through the response-parser pipeline (spec.md §4.5). Building the
// upstream request and handling buffered responses happen in
// internal/httpapi.
package transport

import (
	"bytes"

	"github.com/llmrelay/llmrelay/internal/jsonval"
)

// DefaultPeekBufferSize is how many leading bytes of a streaming response
// are inspected for an inline error event before any are relayed to the
// client, mirroring the original's STREAM_ERROR_CHECK_BUFFER_SIZE.
const DefaultPeekBufferSize = 4096

// PeekedError is a structured SSE-inlined error found within the first
// DefaultPeekBufferSize bytes of a nominally-200 streaming response.
type PeekedError struct {
	Message string
	Type    string
	Raw     jsonval.Value
}

// DetectInlineError scans data (the first chunk(s) of an SSE body, up to
// bufferSize bytes) for a data: line whose JSON payload looks like an
// error event, either MiniMax-style ({"type":"error", ...}) or the more
// common generic {"error": {...}} shape. It returns ok=false once nothing
// resembling an error is found in the window, at which point the caller
// should give up peeking and start relaying bytes through normally.
func DetectInlineError(data []byte) (PeekedError, bool) {
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}
		v, ok := jsonval.Decode(payload)
		if !ok {
			continue
		}
		if perr, ok := errorFromEvent(v); ok {
			return perr, true
		}
	}
	return PeekedError{}, false
}

func errorFromEvent(v jsonval.Value) (PeekedError, bool) {
	if jsonval.String(v, "type") == "error" {
		msg := jsonval.String(v, "error")
		if msg == "" {
			if errObj, ok := jsonval.Object(v, "error"); ok {
				msg = jsonval.String(errObj, "message")
			}
		}
		return PeekedError{Message: msg, Type: "error", Raw: v}, true
	}
	if errObj, ok := jsonval.Object(v, "error"); ok {
		return PeekedError{
			Message: jsonval.String(errObj, "message"),
			Type:    jsonval.String(errObj, "type"),
			Raw:     v,
		}, true
	}
	return PeekedError{}, false
}
