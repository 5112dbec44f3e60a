package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/jsonval"
)

// Usage is the token accounting extracted from a response body, in either
// the OpenAI (prompt/completion/total) or Anthropic (input/output) shape —
// supplemented from original_source/'s src/usage_metrics.py. The buffered
// response path feeds it into RecordUsage; streamed responses are not
// scanned for usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// RequestLog is the per-request structured log sink (spec.md §6.3): one
// event is recorded per recorded fact, and Finalize is guarded by
// sync.Once so it is safe to call from more than one code path (e.g. both
// a deferred cleanup and an explicit success path) without double-logging.
type RequestLog struct {
	logger    *zap.Logger
	requestID string
	start     time.Time
	once      sync.Once

	logParsedResponse bool
	logParsedStream   bool
}

// NewRequestLog starts a request log scoped to requestID.
// logParsedResponse/logParsedStream mirror
// proxy_settings.logging.log_parsed_response/log_parsed_stream: when set,
// Response/StreamEvent additionally record the post-pipeline body
// alongside the raw upstream one.
func NewRequestLog(requestID string, logParsedResponse, logParsedStream bool) *RequestLog {
	return &RequestLog{
		logger:            L().With(zap.String("request_id", requestID)),
		requestID:         requestID,
		start:             time.Now(),
		logParsedResponse: logParsedResponse,
		logParsedStream:   logParsedStream,
	}
}

// RequestLine records the inbound request as first observed.
func (r *RequestLog) RequestLine(method, path, model string) {
	r.logger.Info("request", zap.String("method", method), zap.String("path", path), zap.String("model", model))
}

// Route records the resolved fallback chain for this request.
func (r *RequestLog) Route(primary string, chain []string) {
	r.logger.Info("route", zap.String("primary", primary), zap.Strings("chain", chain))
}

// Attempt records one attempt against a backend.
func (r *RequestLog) Attempt(backend string, attempt int) {
	r.logger.Info("attempt", zap.String("backend", backend), zap.Int("attempt", attempt))
}

// Response records a buffered response. parsedBody is logged only if
// logParsedResponse was enabled for this request.
func (r *RequestLog) Response(status int, rawBody []byte, parsedBody []byte) {
	fields := []zap.Field{zap.Int("status", status), zap.Int("raw_bytes", len(rawBody))}
	if r.logParsedResponse && parsedBody != nil {
		fields = append(fields, zap.ByteString("parsed_body", parsedBody))
	}
	r.logger.Info("response", fields...)
}

// StreamEvent records one relayed SSE event. parsedData is logged only if
// logParsedStream was enabled.
func (r *RequestLog) StreamEvent(rawData []byte, parsedData []byte) {
	fields := []zap.Field{zap.Int("raw_bytes", len(rawData))}
	if r.logParsedStream && parsedData != nil {
		fields = append(fields, zap.ByteString("parsed_data", parsedData))
	}
	r.logger.Debug("stream_event", fields...)
}

// RecordUsage records token accounting extracted from a response.
func (r *RequestLog) RecordUsage(u Usage) {
	r.logger.Info("usage",
		zap.Int("prompt_tokens", u.PromptTokens),
		zap.Int("completion_tokens", u.CompletionTokens),
		zap.Int("total_tokens", u.TotalTokens),
	)
}

// Error records a failure.
func (r *RequestLog) Error(stage string, err error) {
	r.logger.Error("error", zap.String("stage", stage), zap.Error(err))
}

// Finalize records the request's completion and total latency. Safe to
// call more than once; only the first call logs anything.
func (r *RequestLog) Finalize(status int) {
	r.once.Do(func() {
		r.logger.Info("finalize", zap.Int("status", status), zap.Duration("elapsed", time.Since(r.start)))
	})
}

// ExtractUsage reads a response body's "usage" object, supporting both the
// OpenAI shape (prompt_tokens/completion_tokens/total_tokens) and the
// Anthropic shape (input_tokens/output_tokens, no explicit total).
func ExtractUsage(body jsonval.Value) (Usage, bool) {
	usage, ok := jsonval.Object(body, "usage")
	if !ok {
		return Usage{}, false
	}
	if jsonval.Has(usage, "prompt_tokens") || jsonval.Has(usage, "completion_tokens") || jsonval.Has(usage, "total_tokens") {
		return Usage{
			PromptTokens:     asInt(usage["prompt_tokens"]),
			CompletionTokens: asInt(usage["completion_tokens"]),
			TotalTokens:      asInt(usage["total_tokens"]),
		}, true
	}
	if jsonval.Has(usage, "input_tokens") || jsonval.Has(usage, "output_tokens") {
		in := asInt(usage["input_tokens"])
		out := asInt(usage["output_tokens"])
		return Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}, true
	}
	return Usage{}, false
}

func asInt(v any) int {
	f, _ := v.(float64)
	return int(f)
}
