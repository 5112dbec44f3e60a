package shaping

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmrelay/llmrelay/internal/registry"
)

// NormalizeRequestModel strips a leading "openai/" prefix from a client-
// supplied model name, the one normalization applied regardless of which
// backend ultimately serves the request.
func NormalizeRequestModel(model string) string {
	return strings.TrimPrefix(model, "openai/")
}

// ExtractTargetModel resolves the model name to send upstream: an explicit
// per-backend TargetModel override always wins; otherwise the client's
// requested model has its "<api_type>/" or "openai/" prefix stripped.
func ExtractTargetModel(b *registry.Backend, requestedModel string) string {
	if b.TargetModel != "" {
		return b.TargetModel
	}
	if prefix := string(b.APIType) + "/"; strings.HasPrefix(requestedModel, prefix) {
		return strings.TrimPrefix(requestedModel, prefix)
	}
	return strings.TrimPrefix(requestedModel, "openai/")
}

// ExtractAPIType reads a request body's own "api_type" field; forwarding
// itself always uses the resolved backend's APIType, never this value.
func ExtractAPIType(body []byte) (string, bool) {
	r := gjson.GetBytes(body, "api_type")
	if !r.Exists() {
		return "", false
	}
	return r.String(), true
}

// BuildBackendBody rewrites raw for backend b without a full decode/encode
// round trip: it sets the resolved target model, applies the backend's
// "thinking" toggle, and enforces each configured parameter override. If
// nothing needs to change, raw is returned unmodified (including on
// malformed JSON, since that's the upstream's problem to reject, not this
// layer's to mask).
func BuildBackendBody(raw []byte, b *registry.Backend, requestedModel string) []byte {
	if !gjson.ValidBytes(raw) {
		return raw
	}

	out := raw
	changed := false

	target := ExtractTargetModel(b, requestedModel)
	if target != "" && gjson.GetBytes(out, "model").String() != target {
		if next, err := sjson.SetBytes(out, "model", target); err == nil {
			out = next
			changed = true
		}
	}

	if next, ok := applyThinkingFlag(out, b); ok {
		out = next
		changed = true
	}

	for name, pc := range b.Parameters {
		next, ok := applyParameterOverride(out, name, pc)
		if ok {
			out = next
			changed = true
		}
	}

	if !changed {
		return raw
	}
	return out
}

// applyThinkingFlag mirrors the original backend.py's handling: a backend
// explicitly marked SupportsReasoning gets "thinking":{"type":"enabled"}
// forced on if the request didn't already set a thinking object. A backend
// with reasoning unsupported (or no explicit opinion) leaves a
// client-supplied "thinking" field untouched; the original never deletes
// it, and an unset SupportsReasoning flag shouldn't be read as a
// prohibition on whatever the client actually sent.
func applyThinkingFlag(raw []byte, b *registry.Backend) ([]byte, bool) {
	if !b.SupportsReasoning {
		return raw, false
	}

	existing := gjson.GetBytes(raw, "thinking")
	if existing.Exists() {
		return raw, false
	}
	next, err := sjson.SetBytes(raw, "thinking.type", "enabled")
	if err != nil {
		return raw, false
	}
	return next, true
}

// applyParameterOverride enforces one configured parameter: if
// AllowOverride is false, the configured Default always wins even if the
// client sent a value. If AllowOverride is true, the client's value is
// preserved and the Default is only applied when the client omitted the
// field entirely.
func applyParameterOverride(raw []byte, name string, pc registry.ParameterConfig) ([]byte, bool) {
	present := gjson.GetBytes(raw, name).Exists()
	if pc.AllowOverride && present {
		return raw, false
	}
	if pc.Default == nil {
		return raw, false
	}
	next, err := sjson.SetBytes(raw, name, pc.Default)
	if err != nil {
		return raw, false
	}
	return next, true
}
