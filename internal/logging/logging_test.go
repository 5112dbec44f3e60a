package logging

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/llmrelay/llmrelay/internal/jsonval"
)

func TestGenerateSessionID_IncludesPID(t *testing.T) {
	id := GenerateSessionID()
	if id == "" {
		t.Fatal("expected non-empty session id")
	}
	if !strings.HasPrefix(id, strconv.Itoa(os.Getpid())+"-") {
		t.Fatalf("expected session id to start with the pid, got %q", id)
	}
}

func TestExtractUsage_OpenAIShape(t *testing.T) {
	body := jsonval.Value{"usage": jsonval.Value{"prompt_tokens": float64(10), "completion_tokens": float64(5), "total_tokens": float64(15)}}
	u, ok := ExtractUsage(body)
	if !ok {
		t.Fatal("expected usage extracted")
	}
	if u.PromptTokens != 10 || u.CompletionTokens != 5 || u.TotalTokens != 15 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

func TestExtractUsage_AnthropicShape(t *testing.T) {
	body := jsonval.Value{"usage": jsonval.Value{"input_tokens": float64(7), "output_tokens": float64(3)}}
	u, ok := ExtractUsage(body)
	if !ok {
		t.Fatal("expected usage extracted")
	}
	if u.PromptTokens != 7 || u.CompletionTokens != 3 || u.TotalTokens != 10 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

func TestExtractUsage_AbsentReturnsFalse(t *testing.T) {
	if _, ok := ExtractUsage(jsonval.Value{}); ok {
		t.Fatal("expected no usage extracted")
	}
}

func TestRequestLog_FinalizeIsIdempotent(t *testing.T) {
	rl := NewRequestLog("req-1", false, false)
	rl.Finalize(200)
	rl.Finalize(200) // must not panic or double count; nothing to assert on zap output directly
}
