package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/llmrelay/llmrelay/internal/authkeys"
	"github.com/llmrelay/llmrelay/internal/jsonval"
	"github.com/llmrelay/llmrelay/internal/logging"
	"github.com/llmrelay/llmrelay/internal/shaping"
	"github.com/llmrelay/llmrelay/internal/translator"
)

// maxRequestBody bounds how much of a client body we will buffer before
// forwarding; requests larger than this are rejected rather than streamed
// through unbounded, since shaping.BuildBackendBody needs the full body.
const maxRequestBody = 32 << 20 // 32MiB

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "req-unknown"
	}
	return "req-" + hex.EncodeToString(b)
}

// handleCompletions serves /v1/chat/completions and /v1/responses: both are
// OpenAI-dialect JSON bodies routed by their "model" field.
func (e *Engine) handleCompletions(w http.ResponseWriter, r *http.Request) {
	e.handleForward(w, r)
}

// handleMessages serves /v1/messages: Anthropic-dialect bodies. For an
// Anthropic backend the body passes through unchanged (shaping only
// normalizes model/parameters); for any other backend it runs through the
// translator seam first, since the backend speaks a different dialect
// (spec.md §6.2: "for other backends, translation (external collaborator)").
func (e *Engine) handleMessages(w http.ResponseWriter, r *http.Request) {
	e.handleForwardDialect(w, r, "anthropic")
}

// handleEmbeddings and handleRerank are structurally identical forwarding
// endpoints; neither streams.
func (e *Engine) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	e.handleForward(w, r)
}

func (e *Engine) handleRerank(w http.ResponseWriter, r *http.Request) {
	e.handleForward(w, r)
}

func (e *Engine) handleForward(w http.ResponseWriter, r *http.Request) {
	e.handleForwardDialect(w, r, "")
}

// handleForwardDialect is handleForward generalized with the client's own
// request dialect, so handleMessages can route an Anthropic-dialect body to
// a non-Anthropic backend through the translator seam. fromDialect of ""
// means "whatever the backend expects" (no translation attempted).
func (e *Engine) handleForwardDialect(w http.ResponseWriter, r *http.Request, fromDialect string) {
	path := r.URL.Path
	requestID := newRequestID()
	rl := logging.NewRequestLog(requestID, e.LogParsedResponse, e.LogParsedStream)
	defer rl.Finalize(http.StatusOK)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeClientDisconnect(w, path)
		rl.Error("read_body", err)
		return
	}

	if !gjson.ValidBytes(raw) {
		writeInvalidRequest(w, path, "invalid JSON body")
		return
	}
	modelField := gjson.GetBytes(raw, "model")
	if !modelField.Exists() || modelField.String() == "" {
		writeInvalidRequest(w, path, "missing required field: model")
		return
	}
	model := shaping.NormalizeRequestModel(modelField.String())
	streaming := gjson.GetBytes(raw, "stream").Bool()

	rl.RequestLine(r.Method, path, model)

	backend, ok := e.Registry.Get(model)
	if !ok {
		writeModelNotFound(w, path, model)
		return
	}
	if path == "/v1/chat/completions" && translator.RequiresResponsesAPI(model) {
		writeInvalidRequest(w, path, model+" only exists behind /v1/responses")
		return
	}

	if fromDialect != "" && string(backend.APIType) != "" && string(backend.APIType) != fromDialect {
		if decoded, ok := jsonval.Decode(raw); ok {
			if out, err := e.translatorOrPassThrough().RequestOut(decoded, fromDialect, string(backend.APIType)); err == nil {
				if enc, err := jsonval.Encode(out); err == nil {
					raw = enc
				}
			}
		}
	}

	chain, _ := e.Registry.ResolveFallbackChain(model)
	names := make([]string, len(chain))
	for i, b := range chain {
		names[i] = b.Name
	}
	rl.Route(model, names)

	keyValue := ""
	if k, ok := authkeys.FromContext(r.Context()); ok {
		keyValue = k.Value
	}
	if e.Concurrency != nil {
		ctx := r.Context()
		if e.QueueTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.QueueTimeout)
			defer cancel()
		}
		slot, err := e.Concurrency.Acquire(ctx, keyValue)
		if err != nil {
			writeEngineError(w, path, err)
			rl.Error("concurrency", err)
			return
		}
		defer slot.Release()
	}

	status := e.forwardRequest(r.Context(), w, r, model, raw, streaming, rl)
	rl.Finalize(status)
}

// handleModels serves GET /v1/models: stable metadata for every configured
// backend, sorted by name (supplemented from original_source/'s model
// listing endpoint, which spec.md §6.2 only summarizes as "lists backend
// names with stable metadata").
func (e *Engine) handleModels(w http.ResponseWriter, r *http.Request) {
	names := e.Registry.Names()
	sort.Strings(names)
	data := make([]jsonval.Value, 0, len(names))
	for _, name := range names {
		data = append(data, jsonval.Value{
			"id":       name,
			"object":   "model",
			"owned_by": "llmrelay",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonval.Value{"object": "list", "data": data})
}

// handleHealth serves GET /health.
func (e *Engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonval.Value{"status": "ok"})
}
