// Package shaping rewrites outbound requests (headers and body) and inbound
// responses (headers) to match one backend's dialect, without fully
// decoding the JSON body (spec.md §4.2, §4.6).
package shaping

import (
	"net/http"
	"strings"

	"github.com/llmrelay/llmrelay/internal/registry"
)

// hopByHopHeaders are stripped from both the inbound request before
// forwarding and the upstream response before relaying, per RFC 7230 §6.1.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// alwaysStrippedRequestHeaders are removed from the client's request
// headers before building the outbound request, regardless of backend
// dialect: the proxy injects its own authorization/host/content-length.
var alwaysStrippedRequestHeaders = map[string]bool{
	"authorization":  true,
	"host":           true,
	"content-length": true,
}

func isHopByHop(key string) bool {
	return hopByHopHeaders[strings.ToLower(key)]
}

// BuildOutboundHeaders derives the header set to send to backend b, given
// the client's inbound request headers and whether this call is streaming.
// Hop-by-hop and proxy-owned headers are stripped; credentials are injected
// per b.APIType (Bearer for OpenAI-dialect backends, x-api-key for
// Anthropic-dialect ones, stripping any client-supplied x-api-key for the
// latter so it cannot leak a different key upstream); streaming calls force
// Accept: text/event-stream and Accept-Encoding: identity so the proxy sees
// uncompressed SSE framing.
func BuildOutboundHeaders(in http.Header, b *registry.Backend, streaming bool) http.Header {
	out := make(http.Header, len(in)+4)
	for key, values := range in {
		lower := strings.ToLower(key)
		if isHopByHop(lower) || alwaysStrippedRequestHeaders[lower] {
			continue
		}
		if b.APIType == registry.APITypeAnthropic && lower == "x-api-key" {
			continue
		}
		out[key] = append([]string(nil), values...)
	}

	out.Set("Content-Type", "application/json")

	switch b.APIType {
	case registry.APITypeAnthropic:
		out.Set("x-api-key", b.APIKey)
		if out.Get("anthropic-version") == "" {
			if b.AnthropicVersion != "" {
				out.Set("anthropic-version", b.AnthropicVersion)
			} else {
				out.Set("anthropic-version", "2023-06-01")
			}
		}
	default:
		out.Set("Authorization", "Bearer "+b.APIKey)
	}

	if streaming {
		out.Set("Accept", "text/event-stream")
		out.Del("Accept-Encoding")
		out.Set("Accept-Encoding", "identity")
	}

	return out
}

// responseHeaderBlocklist are never copied from the upstream response to
// the client: hop-by-hop headers plus framing headers the proxy's own HTTP
// server recomputes (e.g. after re-encoding a parsed JSON body).
var responseHeaderBlocklist = map[string]bool{
	"content-length":    true,
	"content-encoding":  true,
	"transfer-encoding": true,
}

// FilterResponseHeaders returns the subset of an upstream response's
// headers safe to relay to the client.
func FilterResponseHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		lower := strings.ToLower(key)
		if isHopByHop(lower) || responseHeaderBlocklist[lower] {
			continue
		}
		out[key] = append([]string(nil), values...)
	}
	return out
}
