package parser

import (
	"encoding/json"
	"testing"

	"github.com/llmrelay/llmrelay/internal/jsonval"
)

var ctx = Context{Path: "/v1/chat/completions", ModelName: "alpha", BackendName: "alpha", IsStream: false}

func decode(t *testing.T, raw string) jsonval.Value {
	t.Helper()
	v, ok := jsonval.Decode([]byte(raw))
	if !ok {
		t.Fatalf("failed to decode: %s", raw)
	}
	return v
}

func TestParseTags_BufferedToolCallPromotesFinishReason(t *testing.T) {
	body := decode(t, `{"choices":[{"index":0,"message":{"role":"assistant","content":"<tool_call>lookup<arg_key>q</arg_key><arg_value>\"x\"</arg_value></tool_call>"},"finish_reason":"stop"}]}`)

	out, changed, err := (ParseTags{}).ApplyBuffered(ctx, body)
	if err != nil || !changed {
		t.Fatalf("expected change, err=%v changed=%v", err, changed)
	}
	choice := out["choices"].([]any)[0].(jsonval.Value)
	if choice["finish_reason"] != "tool_calls" {
		t.Fatalf("expected promoted finish_reason, got %v", choice["finish_reason"])
	}
	msg := choice["message"].(jsonval.Value)
	calls := msg["tool_calls"].([]any)
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	fn := calls[0].(jsonval.Value)["function"].(jsonval.Value)
	if fn["name"] != "lookup" {
		t.Fatalf("unexpected function name: %v", fn["name"])
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(fn["arguments"].(string)), &args); err != nil {
		t.Fatalf("arguments not valid json: %v", err)
	}
	if args["q"] != "x" {
		t.Fatalf("unexpected arguments: %v", args)
	}
}

func TestParseTags_NeverSetsToolCallsFinishReasonWithoutCalls(t *testing.T) {
	body := decode(t, `{"choices":[{"index":0,"message":{"role":"assistant","content":"plain text"},"finish_reason":"stop"}]}`)
	out, changed, _ := (ParseTags{}).ApplyBuffered(ctx, body)
	if changed {
		t.Fatalf("expected no change for plain content")
	}
	choice := out["choices"].([]any)[0].(jsonval.Value)
	if choice["finish_reason"] != "stop" {
		t.Fatalf("finish_reason must not be rewritten: %v", choice["finish_reason"])
	}
}

func TestParseTags_Idempotent(t *testing.T) {
	body := decode(t, `{"choices":[{"index":0,"message":{"role":"assistant","content":"<think>because</think><tool_call>lookup<arg_key>q</arg_key><arg_value>1</arg_value></tool_call>answer"},"finish_reason":"stop"}]}`)

	out, _, err := (ParseTags{}).ApplyBuffered(ctx, body)
	if err != nil {
		t.Fatal(err)
	}
	// Re-run over the already-parsed output: must not duplicate or re-extract.
	out2, changed2, err := (ParseTags{}).ApplyBuffered(ctx, out)
	if err != nil {
		t.Fatal(err)
	}
	if changed2 {
		t.Fatalf("re-running ParseTags over an already-parsed body must be a no-op")
	}
	msg1 := out["choices"].([]any)[0].(jsonval.Value)["message"].(jsonval.Value)
	msg2 := out2["choices"].([]any)[0].(jsonval.Value)["message"].(jsonval.Value)
	if msg1["reasoning_content"] != msg2["reasoning_content"] {
		t.Fatalf("reasoning_content must not change on re-run")
	}
}

func TestParseTags_DoesNotOverwriteExistingReasoning(t *testing.T) {
	body := decode(t, `{"choices":[{"index":0,"message":{"role":"assistant","content":"<think>new</think>text","reasoning_content":"original"},"finish_reason":"stop"}]}`)
	out, _, _ := (ParseTags{}).ApplyBuffered(ctx, body)
	msg := out["choices"].([]any)[0].(jsonval.Value)["message"].(jsonval.Value)
	if msg["reasoning_content"] != "original" {
		t.Fatalf("expected original reasoning preserved, got %v", msg["reasoning_content"])
	}
}

func TestParseTags_StreamingMatchesBuffered(t *testing.T) {
	full := "<think>Reasoning.</think>Answer."

	bufBody := jsonval.Value{
		"choices": []any{jsonval.Value{
			"index":         float64(0),
			"message":       jsonval.Value{"role": "assistant", "content": full},
			"finish_reason": "stop",
		}},
	}
	bufOut, _, _ := (ParseTags{}).ApplyBuffered(ctx, bufBody)
	bufMsg := bufOut["choices"].([]any)[0].(jsonval.Value)["message"].(jsonval.Value)

	streamCtx := Context{Path: ctx.Path, ModelName: ctx.ModelName, BackendName: ctx.BackendName, IsStream: true}
	state := (ParseTags{}).NewState()
	var streamedContent, streamedReasoning string
	for _, chunk := range []string{"<thi", "nk>Reas", "oning.</thi", "nk>Ans", "wer."} {
		ev := jsonval.Value{"choices": []any{jsonval.Value{"index": float64(0), "delta": jsonval.Value{"content": chunk}}}}
		if _, err := state.ApplyEvent(streamCtx, ev); err != nil {
			t.Fatal(err)
		}
		delta := ev["choices"].([]any)[0].(jsonval.Value)["delta"].(jsonval.Value)
		if c, ok := delta["content"].(string); ok {
			streamedContent += c
		}
		if r, ok := delta["reasoning_content"].(string); ok {
			streamedReasoning += r
		}
	}
	finalEvents, err := state.Finalize(streamCtx)
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range finalEvents {
		delta := ev["choices"].([]any)[0].(jsonval.Value)["delta"].(jsonval.Value)
		if c, ok := delta["content"].(string); ok {
			streamedContent += c
		}
		if r, ok := delta["reasoning_content"].(string); ok {
			streamedReasoning += r
		}
	}

	if streamedContent != bufMsg["content"] {
		t.Fatalf("content parity mismatch: streamed=%q buffered=%q", streamedContent, bufMsg["content"])
	}
	if streamedReasoning != bufMsg["reasoning_content"] {
		t.Fatalf("reasoning parity mismatch: streamed=%q buffered=%q", streamedReasoning, bufMsg["reasoning_content"])
	}
}
