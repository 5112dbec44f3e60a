// Package httpapi exposes the OpenAI/Anthropic-compatible HTTP surface
// (spec.md §6.2), wiring together internal/registry, internal/router,
// internal/concurrency, internal/shaping, internal/transport, and
// internal/parser into request handlers, in the style of the teacher's
// internal/proxy package (server.go's middleware stack, handler.go's
// per-endpoint handler functions).
package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/llmrelay/llmrelay/internal/authkeys"
	"github.com/llmrelay/llmrelay/internal/concurrency"
	"github.com/llmrelay/llmrelay/internal/jsonval"
	"github.com/llmrelay/llmrelay/internal/logging"
	"github.com/llmrelay/llmrelay/internal/parser"
	"github.com/llmrelay/llmrelay/internal/registry"
	"github.com/llmrelay/llmrelay/internal/router"
	"github.com/llmrelay/llmrelay/internal/shaping"
	"github.com/llmrelay/llmrelay/internal/translator"
	"github.com/llmrelay/llmrelay/internal/transport"
)

// Engine holds every collaborator a request handler needs. One Engine is
// shared by all HTTP handlers; it has no per-request mutable state.
type Engine struct {
	Registry          *registry.Registry
	Router            *router.Router
	Concurrency       *concurrency.Manager
	Pipeline          *parser.Pipeline
	AuthStore         *authkeys.Store
	// Translator handles the out-of-scope Responses-API/cross-dialect
	// rewrites (spec.md §1); a PassThrough is used if nil.
	Translator        translator.Translator
	LogParsedResponse bool
	LogParsedStream   bool
	QueueTimeout      time.Duration
}

func (e *Engine) translatorOrPassThrough() translator.Translator {
	if e.Translator != nil {
		return e.Translator
	}
	return translator.PassThrough{}
}

// attemptOutcome is what one router attempt produces: either it already
// wrote the full response to the client (success, no further retry
// possible) or it is a retryable failure the router should act on.
type attemptOutcome struct {
	committed bool
}

// forwardRequest resolves modelName's backend chain and drives one logical
// request end to end: outbound shaping, upstream call, retry/fallback, and
// relaying the result (buffered or streamed) to w. It returns the final
// HTTP status actually sent to the client for logging purposes.
func (e *Engine) forwardRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, modelName string, rawBody []byte, streaming bool, rl *logging.RequestLog) int {
	path := r.URL.Path
	finalStatus := 0

	_, err := router.Forward(ctx, e.Router, modelName, func(ctx context.Context, b *registry.Backend, attempt int) (attemptOutcome, error) {
		rl.Attempt(b.Name, attempt)

		outboundBody := shaping.BuildBackendBody(rawBody, b, modelName)
		outboundHeaders := shaping.BuildOutboundHeaders(r.Header, b, streaming)

		endpoint := b.BaseURL + path
		req, err := http.NewRequestWithContext(ctx, r.Method, endpoint, io.NopCloser(bytes.NewReader(outboundBody)))
		if err != nil {
			return attemptOutcome{}, err
		}
		req.Header = outboundHeaders
		req.ContentLength = int64(len(outboundBody))

		timeout := time.Duration(b.Timeout * float64(time.Second))
		client := transport.NewClient(b, timeout)
		resp, err := client.Do(req)
		if err != nil {
			reason := "connection_error"
			if ctx.Err() != nil {
				reason = "timeout"
			}
			return attemptOutcome{}, &router.RetryableError{Backend: b.Name, Reason: reason, Err: err}
		}

		if router.IsRetryableStatus(resp.StatusCode) {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return attemptOutcome{}, &router.RetryableError{
				Backend:    b.Name,
				StatusCode: resp.StatusCode,
				Reason:     "status",
				Response:   body,
				Header:     shaping.FilterResponseHeaders(resp.Header),
			}
		}

		respHeaders := shaping.FilterResponseHeaders(resp.Header)

		// A non-retryable error status (e.g. 400, 401, 404) is relayed to
		// the client verbatim, bypassing the SSE relay/parser and the
		// buffered parser pipeline: neither is meant to see an error body,
		// streaming or not (spec.md §4.5).
		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return attemptOutcome{}, &router.RetryableError{Backend: b.Name, Reason: "connection_error", Err: err}
			}
			for k, v := range respHeaders {
				w.Header()[k] = v
			}
			w.WriteHeader(resp.StatusCode)
			w.Write(body)
			finalStatus = resp.StatusCode
			return attemptOutcome{committed: true}, nil
		}

		if streaming {
			var session *parser.Session
			if e.Pipeline != nil && e.Pipeline.Applies(path) {
				session = e.Pipeline.NewSession(parser.Context{Path: path, ModelName: modelName, BackendName: b.Name, IsStream: true})
			}

			relay := transport.NewRelay(resp.Body, transport.ResponseFlusher{W: w}, session, 0)
			relay.OnCommit = func() {
				for k, v := range respHeaders {
					w.Header()[k] = v
				}
				w.Header().Set("Content-Type", "text/event-stream")
				w.WriteHeader(resp.StatusCode)
				finalStatus = resp.StatusCode
			}

			perr, runErr := relay.Run()
			if perr != nil {
				// Peek caught an inline error before anything was committed
				// to the client (P1): safe to retry/fall back.
				return attemptOutcome{}, &router.RetryableError{Backend: b.Name, Reason: "inline_error:" + perr.Type, Err: fmt.Errorf("%s", perr.Message)}
			}
			if runErr != nil {
				rl.Error("relay", runErr)
			}
			if finalStatus == 0 {
				// OnCommit never fired: Run returned before the peek cleared
				// without reporting an error, which shouldn't happen, but
				// guard against silently reporting success with no bytes sent.
				return attemptOutcome{}, runErr
			}
			return attemptOutcome{committed: true}, nil
		}

		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return attemptOutcome{}, &router.RetryableError{Backend: b.Name, Reason: "connection_error", Err: err}
		}

		final := body
		if e.Pipeline != nil && e.Pipeline.Applies(path) {
			if out, changed, err := e.Pipeline.ApplyBuffered(parser.Context{Path: path, ModelName: modelName, BackendName: b.Name}, body); err == nil && changed {
				final = out
			}
		}

		if decoded, ok := jsonval.Decode(final); ok {
			if usage, ok := logging.ExtractUsage(decoded); ok {
				rl.RecordUsage(usage)
			}
		}
		rl.Response(resp.StatusCode, body, final)

		for k, v := range respHeaders {
			w.Header()[k] = v
		}
		w.Header().Set("Content-Length", fmt.Sprintf("%d", len(final)))
		w.WriteHeader(resp.StatusCode)
		w.Write(final)
		finalStatus = resp.StatusCode
		return attemptOutcome{committed: true}, nil
	})

	if err != nil && finalStatus == 0 {
		if status, ok := writeMaterializedResponse(w, err); ok {
			return status
		}
		return writeEngineError(w, path, err)
	}
	return finalStatus
}
