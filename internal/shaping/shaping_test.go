package shaping

import (
	"net/http"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/llmrelay/llmrelay/internal/registry"
)

func TestBuildOutboundHeaders_StripsHopByHopAndProxyOwned(t *testing.T) {
	in := http.Header{}
	in.Set("Authorization", "Bearer client-token")
	in.Set("Host", "example.com")
	in.Set("Connection", "keep-alive")
	in.Set("X-Custom", "keep-me")

	b := &registry.Backend{Name: "b1", APIType: registry.APITypeOpenAI, APIKey: "sk-upstream"}
	out := BuildOutboundHeaders(in, b, false)

	if out.Get("Authorization") != "Bearer sk-upstream" {
		t.Fatalf("expected injected bearer token, got %q", out.Get("Authorization"))
	}
	if out.Get("Host") != "" {
		t.Fatalf("expected Host stripped")
	}
	if out.Get("Connection") != "" {
		t.Fatalf("expected Connection stripped")
	}
	if out.Get("X-Custom") != "keep-me" {
		t.Fatalf("expected custom header preserved")
	}
}

func TestBuildOutboundHeaders_AnthropicUsesXAPIKeyAndStripsClientOne(t *testing.T) {
	in := http.Header{}
	in.Set("x-api-key", "client-leaked-key")

	b := &registry.Backend{Name: "b1", APIType: registry.APITypeAnthropic, APIKey: "sk-ant-upstream"}
	out := BuildOutboundHeaders(in, b, false)

	if out.Get("x-api-key") != "sk-ant-upstream" {
		t.Fatalf("expected upstream key injected, got %q", out.Get("x-api-key"))
	}
	if out.Get("anthropic-version") == "" {
		t.Fatalf("expected default anthropic-version set")
	}
}

func TestBuildOutboundHeaders_StreamingForcesIdentityEncoding(t *testing.T) {
	b := &registry.Backend{Name: "b1", APIType: registry.APITypeOpenAI, APIKey: "k"}
	out := BuildOutboundHeaders(http.Header{}, b, true)
	if out.Get("Accept") != "text/event-stream" {
		t.Fatalf("expected SSE accept header, got %q", out.Get("Accept"))
	}
	if out.Get("Accept-Encoding") != "identity" {
		t.Fatalf("expected identity encoding, got %q", out.Get("Accept-Encoding"))
	}
}

func TestFilterResponseHeaders_DropsFramingHeaders(t *testing.T) {
	in := http.Header{}
	in.Set("Content-Length", "123")
	in.Set("Content-Encoding", "gzip")
	in.Set("X-Request-Id", "abc")
	out := FilterResponseHeaders(in)
	if out.Get("Content-Length") != "" || out.Get("Content-Encoding") != "" {
		t.Fatalf("expected framing headers dropped: %v", out)
	}
	if out.Get("X-Request-Id") != "abc" {
		t.Fatalf("expected other headers preserved")
	}
}

func TestExtractTargetModel_OverrideWinsOverRequested(t *testing.T) {
	b := &registry.Backend{APIType: registry.APITypeOpenAI, TargetModel: "gpt-4o-mini"}
	if got := ExtractTargetModel(b, "openai/gpt-4o"); got != "gpt-4o-mini" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestExtractTargetModel_StripsDialectThenOpenAIPrefix(t *testing.T) {
	b := &registry.Backend{APIType: registry.APITypeAnthropic}
	if got := ExtractTargetModel(b, "anthropic/claude-3"); got != "claude-3" {
		t.Fatalf("expected dialect prefix stripped, got %q", got)
	}
	b2 := &registry.Backend{APIType: registry.APITypeOpenAI}
	if got := ExtractTargetModel(b2, "openai/gpt-4o"); got != "gpt-4o" {
		t.Fatalf("expected openai prefix stripped, got %q", got)
	}
}

func TestBuildBackendBody_SetsTargetModelWithoutFullDecode(t *testing.T) {
	b := &registry.Backend{APIType: registry.APITypeOpenAI, TargetModel: "gpt-4o-mini"}
	raw := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	out := BuildBackendBody(raw, b, "gpt-4o")
	if gjson.GetBytes(out, "model").String() != "gpt-4o-mini" {
		t.Fatalf("expected model rewritten, got %s", out)
	}
	if gjson.GetBytes(out, "messages.0.content").String() != "hi" {
		t.Fatalf("expected rest of body untouched: %s", out)
	}
}

func TestBuildBackendBody_ThinkingForcedWhenSupportedAndAbsent(t *testing.T) {
	b := &registry.Backend{SupportsReasoning: true}
	raw := []byte(`{"model":"m"}`)
	out := BuildBackendBody(raw, b, "m")
	if gjson.GetBytes(out, "thinking.type").String() != "enabled" {
		t.Fatalf("expected thinking enabled, got %s", out)
	}
}

func TestBuildBackendBody_ThinkingLeftAloneWhenUnsupported(t *testing.T) {
	b := &registry.Backend{SupportsReasoning: false}
	raw := []byte(`{"model":"m","thinking":{"type":"enabled"}}`)
	out := BuildBackendBody(raw, b, "m")
	if gjson.GetBytes(out, "thinking.type").String() != "enabled" {
		t.Fatalf("expected client-supplied thinking field untouched, got %s", out)
	}
}

func TestBuildBackendBody_ParameterOverrideForcedWhenNotAllowed(t *testing.T) {
	b := &registry.Backend{
		Parameters: map[string]registry.ParameterConfig{
			"temperature": {Default: 0.2, AllowOverride: false},
		},
	}
	raw := []byte(`{"model":"m","temperature":0.9}`)
	out := BuildBackendBody(raw, b, "m")
	if gjson.GetBytes(out, "temperature").Float() != 0.2 {
		t.Fatalf("expected forced default, got %s", out)
	}
}

func TestBuildBackendBody_ParameterOverridePreservedWhenAllowed(t *testing.T) {
	b := &registry.Backend{
		Parameters: map[string]registry.ParameterConfig{
			"temperature": {Default: 0.2, AllowOverride: true},
		},
	}
	raw := []byte(`{"model":"m","temperature":0.9}`)
	out := BuildBackendBody(raw, b, "m")
	if gjson.GetBytes(out, "temperature").Float() != 0.9 {
		t.Fatalf("expected client value preserved, got %s", out)
	}
}

func TestBuildBackendBody_ParameterDefaultAppliedWhenOmitted(t *testing.T) {
	b := &registry.Backend{
		Parameters: map[string]registry.ParameterConfig{
			"temperature": {Default: 0.2, AllowOverride: true},
		},
	}
	raw := []byte(`{"model":"m"}`)
	out := BuildBackendBody(raw, b, "m")
	if gjson.GetBytes(out, "temperature").Float() != 0.2 {
		t.Fatalf("expected default applied, got %s", out)
	}
}

func TestBuildBackendBody_ReturnsOriginalBytesWhenNoChange(t *testing.T) {
	b := &registry.Backend{}
	raw := []byte(`{"model":"m"}`)
	out := BuildBackendBody(raw, b, "m")
	if &out[0] != &raw[0] {
		t.Fatalf("expected identical backing array when no rewrite needed")
	}
}

func TestBuildBackendBody_MalformedJSONPassesThroughUnchanged(t *testing.T) {
	b := &registry.Backend{TargetModel: "x"}
	raw := []byte(`not json`)
	out := BuildBackendBody(raw, b, "m")
	if string(out) != string(raw) {
		t.Fatalf("expected malformed body passed through unchanged")
	}
}
